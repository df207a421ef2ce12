package models

// EventKind names the realtime dashboard notifications. The values match
// the socket events emitted by the original dashboard backend.
type EventKind string

const (
	EventWelcome         EventKind = "bienvenida"
	EventNewRecord       EventKind = "nuevo_registro"
	EventAnalysisUpdated EventKind = "actualizacion_analisis"
)

// DashboardEvent is delivered best-effort to connected subscribers only.
// It is transport-only and never persisted.
type DashboardEvent struct {
	Kind   EventKind    `json:"evento"`
	Record *ImageRecord `json:"registro,omitempty"`
}
