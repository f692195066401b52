package imagegen

import (
	"fmt"
	"strings"

	"posemind/internal/domain"
)

var styleLines = []string{
	"简洁的线条画风格",
	"黑白色调",
	"清晰展示姿势动作",
	"类似教学示意图",
	"白色背景",
	"火柴人或简笔画风格",
	"专业、健康、优雅的姿势",
	"适合摄影教学和姿势指导",
	"无不当内容，符合安全规范",
}

// BuildPrompt renders the line-drawing illustration prompt for one pose.
func BuildPrompt(gender domain.Gender, description string) string {
	sb := &strings.Builder{}
	fmt.Fprintf(sb, "简单的黑白线条图，%s人物姿势示意图：%s。\n风格要求：", gender.Label(), strings.TrimSpace(description))
	for _, line := range styleLines {
		sb.WriteString("\n- ")
		sb.WriteString(line)
	}
	return sb.String()
}
