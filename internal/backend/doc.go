// Package backend defines the ports to the external AI generation
// services: topic extraction, reference retrieval, script generation,
// speech synthesis, video rendering and notification. These interfaces
// form the boundary between the pipeline core and external AI/LLM
// services, following the hexagonal architecture pattern. Concrete
// adapters live under internal/platform.
package backend
