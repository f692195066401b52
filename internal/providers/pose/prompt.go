package pose

import (
	"fmt"
	"strings"

	"posemind/internal/domain"
)

const systemPrompt = "你是一名专业人像摄影指导。只输出合法的 JSON 数组，不要输出任何其他文字。"

func buildUserPrompt(scene, label string, n int) string {
	sb := &strings.Builder{}
	fmt.Fprintf(sb, "根据以下场景分析，为%s智能生成%d个摄影姿势建议。\n\n", label, n)
	fmt.Fprintf(sb, "场景信息：\n%s\n\n", strings.TrimSpace(scene))
	sb.WriteString("要求：\n")
	sb.WriteString("1. 根据场景特点和氛围，生成适合该环境的姿势\n")
	sb.WriteString("2. 确保姿势多样化，涵盖不同风格\n")
	sb.WriteString("3. 考虑场景中的可用道具和环境特点\n")
	fmt.Fprintf(sb, "4. 姿势要自然、可实现，适合%s，符合人体结构，不要出现不可能完成的动作\n", label)
	sb.WriteString("5. 提供详细的姿势描述，包括身体、手臂、腿部、表情等细节\n")
	sb.WriteString("6. 安全约束：所有姿势必须专业、健康、优雅，适合摄影教学和姿势指导，无不当内容，符合安全规范\n\n")
	fmt.Fprintf(sb, "请以JSON格式返回%d个姿势，每个姿势包含：\n", n)
	sb.WriteString("- name: 姿势名称（不超过12个字）\n")
	sb.WriteString("- description: 姿势描述（40到120个字，说明身体、手臂、表情的摆放）\n")
	fmt.Fprintf(sb, "- category: 姿势类别（%s）\n\n", strings.Join(domain.PoseCategories, "/"))
	sb.WriteString("格式示例：\n")
	sb.WriteString(`[{"name": "优雅侧身望", "description": "45度侧身站立，头部微微转向镜头，右手自然垂放，左手轻扶腰间，展现优雅的身体曲线", "category": "经典"}]`)
	sb.WriteString("\n\n请使用中文，直接返回JSON数组，不要有其他文字。")
	return sb.String()
}
