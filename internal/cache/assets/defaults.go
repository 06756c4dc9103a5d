package assets

import (
	"fmt"

	"go.uber.org/zap"
)

// Default class names and capacities.
const (
	ClassSystemPrompt    = "system_prompt"
	ClassToolDescription = "tool_description"

	systemPromptCapacity    = 32
	toolDescriptionCapacity = 64
)

// toolDescriptions is the static tool description table.
var toolDescriptions = map[string]string{
	"search_medical_knowledge": "Tìm kiếm thông tin y khoa trong cơ sở dữ liệu kiến thức",
	"check_drug_interaction":   "Kiểm tra tương tác giữa các loại thuốc",
	"analyze_lab_results":      "Phân tích kết quả xét nghiệm",
	"search_icd10":             "Tra cứu mã bệnh ICD-10",
	"create_lab_order":         "Tạo phiếu yêu cầu xét nghiệm",
	"track_sample_status":      "Theo dõi trạng thái mẫu xét nghiệm",
	"escalate_to_human":        "Chuyển tiếp cho nhân viên y tế",
}

// NewDefaultRegistry builds the standard registry: system prompts resolved
// by the injected loader, tool descriptions from the static table with a
// generic fallback.
func NewDefaultRegistry(promptLoader Loader, logger *zap.Logger) (*Registry, error) {
	prompts, err := NewClass(ClassSystemPrompt, systemPromptCapacity, promptLoader, nil, logger)
	if err != nil {
		return nil, err
	}

	tools, err := NewClass(ClassToolDescription, toolDescriptionCapacity,
		func(name string) (string, bool) {
			v, ok := toolDescriptions[name]
			return v, ok
		},
		func(name string) string { return fmt.Sprintf("Tool: %s", name) },
		logger,
	)
	if err != nil {
		return nil, err
	}

	r := NewRegistry()
	r.Add(prompts)
	r.Add(tools)
	return r, nil
}
