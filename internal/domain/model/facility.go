package model

// Signatory - подписант документов.
type Signatory struct {
	// Role - роль подписанта (head_of_facility, lab_manager, ...)
	Role         string `json:"role"`
	Name         string `json:"name"`
	Title        string `json:"title"`
	Email        string `json:"email,omitempty"`
	SignatureURL string `json:"signature_url,omitempty"`
}

// FacilityConfig - действующая конфигурация лаборатории для документов.
type FacilityConfig struct {
	FacilityName string      `json:"facility_name"`
	Department   string      `json:"department"`
	Institution  string      `json:"institution"`
	Address      string      `json:"address"`
	Phone        string      `json:"phone"`
	Email        string      `json:"email"`
	Signatories  []Signatory `json:"signatories"`
	LogoURL      string      `json:"logo_url,omitempty"`
}

// SignatoryByRole возвращает подписанта с указанной ролью.
func (c *FacilityConfig) SignatoryByRole(role string) (Signatory, bool) {
	for _, s := range c.Signatories {
		if s.Role == role {
			return s, true
		}
	}
	return Signatory{}, false
}
