package handlers

import (
	"errors"
	"net/http"

	"posemind/internal/domain"
)

type messageKey string

const (
	msgNoImage            messageKey = "no_image"
	msgNoFile             messageKey = "no_file"
	msgUnsupportedFormat  messageKey = "unsupported_format"
	msgInvalidImage       messageKey = "invalid_image"
	msgFileTooLarge       messageKey = "file_too_large"
	msgUploadFailed       messageKey = "upload_failed"
	msgMissingImage       messageKey = "missing_image"
	msgImageNotFound      messageKey = "image_not_found"
	msgMissingCredentials messageKey = "missing_credentials"
	msgQuotaExceeded      messageKey = "quota_exceeded"
	msgMissingDescription messageKey = "missing_description"
	msgIllustrationFailed messageKey = "illustration_failed"
	msgGenerateFailed     messageKey = "generate_failed"
	msgInvalidPayload     messageKey = "invalid_payload"
	msgNotFound           messageKey = "not_found"
)

var catalog = map[string]map[messageKey]string{
	"zh": {
		msgNoImage:            "没有上传图片",
		msgNoFile:             "未选择文件",
		msgUnsupportedFormat:  "不支持的文件格式",
		msgInvalidImage:       "图片无法识别",
		msgFileTooLarge:       "文件过大",
		msgUploadFailed:       "上传失败",
		msgMissingImage:       "请先上传图片",
		msgImageNotFound:      "图片不存在",
		msgMissingCredentials: "服务未配置 API 密钥",
		msgQuotaExceeded:      "今日使用次数已达上限，请明天再试",
		msgMissingDescription: "缺少姿势描述",
		msgIllustrationFailed: "姿势图生成失败",
		msgGenerateFailed:     "生成失败",
		msgInvalidPayload:     "请求格式错误",
		msgNotFound:           "文件不存在",
	},
	"en": {
		msgNoImage:            "no image uploaded",
		msgNoFile:             "no file selected",
		msgUnsupportedFormat:  "unsupported file format",
		msgInvalidImage:       "the file is not a readable image",
		msgFileTooLarge:       "file too large",
		msgUploadFailed:       "upload failed",
		msgMissingImage:       "please upload an image first",
		msgImageNotFound:      "image not found",
		msgMissingCredentials: "API keys are not configured",
		msgQuotaExceeded:      "daily usage limit reached, try again tomorrow",
		msgMissingDescription: "pose description is required",
		msgIllustrationFailed: "pose illustration failed",
		msgGenerateFailed:     "generation failed",
		msgInvalidPayload:     "invalid request payload",
		msgNotFound:           "file not found",
	},
}

func message(locale string, key messageKey) string {
	if m, ok := catalog[locale]; ok {
		if s, ok := m[key]; ok {
			return s
		}
	}
	return catalog["zh"][key]
}

func classify(err error) (int, messageKey) {
	switch {
	case errors.Is(err, domain.ErrMissingImage):
		return http.StatusBadRequest, msgMissingImage
	case errors.Is(err, domain.ErrMissingDescription):
		return http.StatusBadRequest, msgMissingDescription
	case errors.Is(err, domain.ErrUnsupportedFormat):
		return http.StatusBadRequest, msgUnsupportedFormat
	case errors.Is(err, domain.ErrInvalidImage):
		return http.StatusBadRequest, msgInvalidImage
	case errors.Is(err, domain.ErrImageNotFound):
		return http.StatusNotFound, msgImageNotFound
	case errors.Is(err, domain.ErrQuotaExceeded):
		return http.StatusTooManyRequests, msgQuotaExceeded
	case errors.Is(err, domain.ErrMissingCredentials):
		return http.StatusInternalServerError, msgMissingCredentials
	case errors.Is(err, domain.ErrIllustrationFailed):
		return http.StatusBadGateway, msgIllustrationFailed
	default:
		return http.StatusInternalServerError, msgGenerateFailed
	}
}
