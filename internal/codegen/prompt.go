package codegen

import (
	"fmt"
	"strings"

	"github.com/mameikagou/compoder/internal/models"
)

// Instruction is the fully assembled, model-facing payload for one
// generation run: a system directive rendered from the codegen's rule set
// plus the user's literal prompt parts in caller order.
type Instruction struct {
	System string
	Prompt []models.PromptPart
}

// Assemble builds the model instruction from the user prompt and the
// codegen's rules. It is deterministic and pure: missing rule sections are
// simply omitted from the rendered directive, never an error.
func Assemble(prompt []models.PromptPart, rules models.RuleSet) Instruction {
	var b strings.Builder

	b.WriteString("You are a senior frontend engineer generating UI component code.\n")
	b.WriteString("Wrap every generated file in a <" + DefaultArtifactTag +
		" name=\"FileName.ext\"> ... </" + DefaultArtifactTag + "> block.\n")
	b.WriteString("Any prose outside those blocks is treated as commentary and discarded.\n")

	if rules.PublicComponentLibs != nil && len(rules.PublicComponentLibs.DataSet) > 0 {
		b.WriteString("\n## Allowed public component libraries\n")
		for _, lib := range rules.PublicComponentLibs.DataSet {
			b.WriteString("- " + lib + "\n")
		}
		b.WriteString("Do not import component libraries outside this list.\n")
	}

	if rules.StyleGuide != nil && rules.StyleGuide.Prompt != "" {
		b.WriteString("\n## Style guide\n")
		b.WriteString(rules.StyleGuide.Prompt + "\n")
	}

	for _, lib := range rules.PrivateComponents {
		b.WriteString(fmt.Sprintf("\n## Private library: %s\n", lib.LibName))
		for _, comp := range lib.Components {
			b.WriteString(fmt.Sprintf("### %s\n", comp.Name))
			if comp.Description != "" {
				b.WriteString(comp.Description + "\n")
			}
			if comp.APIDoc != "" {
				b.WriteString(comp.APIDoc + "\n")
			}
		}
	}

	if rules.FileStructure != nil && rules.FileStructure.Prompt != "" {
		b.WriteString("\n## File structure\n")
		b.WriteString(rules.FileStructure.Prompt + "\n")
	}

	if rules.Notes != nil && rules.Notes.Prompt != "" {
		b.WriteString("\n## Notes\n")
		b.WriteString(rules.Notes.Prompt + "\n")
	}

	return Instruction{
		System: b.String(),
		Prompt: prompt,
	}
}
