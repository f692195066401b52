package handlers

import (
	"net/http"

	"posemind/internal/domain"
	"posemind/internal/middleware"
	"posemind/internal/orchestrator"
)

type generateRequest struct {
	ImageFilename string `json:"image_filename" validate:"max=255"`
	Gender        string `json:"gender" validate:"max=16"`
}

type illustrateRequest struct {
	ImageFilename string `json:"image_filename" validate:"max=255"`
	Gender        string `json:"gender" validate:"max=16"`
	SceneAnalysis string `json:"scene_analysis" validate:"max=4000"`
	Index         int    `json:"index" validate:"gte=0,lte=99"`
	Pose          struct {
		Name        string `json:"name" validate:"max=64"`
		Description string `json:"description" validate:"max=600"`
		Category    string `json:"category" validate:"max=16"`
	} `json:"pose"`
}

type illustrateResponse struct {
	Status      string             `json:"status"`
	PoseVariant domain.PoseVariant `json:"pose_variant"`
}

// GeneratePoses runs the full pipeline for an uploaded image.
func (a *App) GeneratePoses(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if !a.decode(w, r, &req) {
		return
	}
	res, err := a.Service.PlanAndGenerate(r.Context(), middleware.SessionFromContext(r.Context()), orchestrator.GenerateInput{
		ImageFilename: req.ImageFilename,
		Gender:        domain.ParseGender(req.Gender),
	})
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, res)
}

// PlanPoses returns scene analysis and pose text without illustrations.
func (a *App) PlanPoses(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if !a.decode(w, r, &req) {
		return
	}
	res, err := a.Service.Plan(r.Context(), middleware.SessionFromContext(r.Context()), orchestrator.GenerateInput{
		ImageFilename: req.ImageFilename,
		Gender:        domain.ParseGender(req.Gender),
	})
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, res)
}

// GeneratePoseImage illustrates a single pose on demand.
func (a *App) GeneratePoseImage(w http.ResponseWriter, r *http.Request) {
	var req illustrateRequest
	if !a.decode(w, r, &req) {
		return
	}
	variant, err := a.Service.Illustrate(r.Context(), middleware.SessionFromContext(r.Context()), orchestrator.IllustrateInput{
		ImageFilename: req.ImageFilename,
		Gender:        domain.ParseGender(req.Gender),
		Scene:         req.SceneAnalysis,
		Index:         req.Index,
		Pose: domain.PoseSuggestion{
			Name:        req.Pose.Name,
			Description: req.Pose.Description,
			Category:    req.Pose.Category,
		},
	})
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, illustrateResponse{Status: "success", PoseVariant: *variant})
}

// Usage reports the caller's remaining daily quota.
func (a *App) Usage(w http.ResponseWriter, r *http.Request) {
	st, err := a.Service.Usage(r.Context(), middleware.SessionFromContext(r.Context()))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, st)
}
