package models

import (
	"time"

	"github.com/google/uuid"
)

// PromptPart is one element of a generation prompt: either a text fragment
// or an image reference (data URL or plain URI).
type PromptPart struct {
	Type  string `json:"type" binding:"required,oneof=text image"`
	Text  string `json:"text,omitempty"`
	Image string `json:"image,omitempty"`
}

// Prompt part types
const (
	PromptPartText  = "text"
	PromptPartImage = "image"
)

// Version is one immutable snapshot in a component's history: the prompt
// that produced it and the resulting code. Versions are append-only.
type Version struct {
	ID        uuid.UUID    `json:"id" db:"id"`
	Prompt    []PromptPart `json:"prompt" db:"prompt"`
	Code      string       `json:"code" db:"code"`
	CreatedAt time.Time    `json:"created_at" db:"created_at"`
}

// ComponentCode is the persistent identity a user iterates on. It belongs to
// exactly one codegen (project) and one creating user, and always holds at
// least one Version after creation.
type ComponentCode struct {
	ID          uuid.UUID `json:"id" db:"id"`
	CodegenID   uuid.UUID `json:"codegen_id" db:"codegen_id"`
	UserID      uuid.UUID `json:"user_id" db:"user_id"`
	Name        string    `json:"name" db:"name"`
	Description string    `json:"description" db:"description"`
	Versions    []Version `json:"versions,omitempty"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}

// ComponentSummary is the list-view projection of a ComponentCode: identity,
// metadata and the code of its most recent version.
type ComponentSummary struct {
	ID                uuid.UUID `json:"id"`
	Name              string    `json:"name"`
	Description       string    `json:"description"`
	LatestVersionCode string    `json:"latestVersionCode"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// RuleSet holds the generation constraints attached to a codegen. Every
// field is optional; a zero value means "no constraint of this kind".
type RuleSet struct {
	PublicComponentLibs *PublicLibsRule  `json:"publicComponentLibs,omitempty"`
	StyleGuide          *PromptRule      `json:"styleGuide,omitempty"`
	PrivateComponents   []PrivateLibRule `json:"privateComponents,omitempty"`
	FileStructure       *PromptRule      `json:"fileStructure,omitempty"`
	Notes               *PromptRule      `json:"notes,omitempty"`
}

// PublicLibsRule lists the allowed public component library names.
type PublicLibsRule struct {
	DataSet []string `json:"dataSet"`
}

// PromptRule is a free-text directive rendered verbatim into the instruction.
type PromptRule struct {
	Prompt string `json:"prompt"`
}

// PrivateLibRule describes one private component library and its components.
type PrivateLibRule struct {
	LibName    string                 `json:"libName"`
	Components []PrivateComponentRule `json:"components"`
}

// PrivateComponentRule documents a single private component for the model.
type PrivateComponentRule struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	APIDoc      string `json:"apiDoc"`
}
