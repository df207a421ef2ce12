package vision

// Prompts sent to the model. Spanish to match the dashboard, which also
// keys error detection off the "Error" prefix in analysis text.
const (
	// DescribePrompt is used for the per-record analysis of a single image.
	DescribePrompt = "Describe en una frase breve y concreta lo que se observa en esta imagen capturada por un sensor."

	// BatchPrompt is used for the trailing-window aggregate insight.
	BatchPrompt = "Analiza este conjunto de imágenes recientes capturadas por sensores, en orden cronológico, y resume en pocas frases qué está ocurriendo y si hay cambios relevantes entre ellas."

	// NoDataText is returned when the trailing window holds no images.
	NoDataText = "Sin datos nuevos en la ventana de análisis."
)
