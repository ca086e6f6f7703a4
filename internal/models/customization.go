package models

// Customization is the replicated look of the auditorium.
type Customization struct {
	AccentColor string `json:"accent_color,omitempty"`
	LogoURL     string `json:"logo_url,omitempty"`
}
