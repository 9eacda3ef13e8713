package domain

import "time"

// GenerationMethod records which path produced a script.
type GenerationMethod string

const (
	MethodLLM      GenerationMethod = "llm"
	MethodTemplate GenerationMethod = "template"
)

// Script is narration text tied to exactly one product.
type Script struct {
	ID             string           `json:"id"`
	ProductRef     string           `json:"product_ref"`
	Text           string           `json:"text"`
	Method         GenerationMethod `json:"generation_method"`
	Provider       string           `json:"provider,omitempty"`
	FallbackReason string           `json:"fallback_reason,omitempty"`
	CreatedAt      time.Time        `json:"created_at"`
}

// Prompt is the provider-neutral request for the text generator.
type Prompt struct {
	System string
	User   string
}
