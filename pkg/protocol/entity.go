package protocol

// Entity is one addressable visual element. Coordinates are normalised to
// the unit cube; the renderer maps them into its zone. Brightness,
// Interpolation, Glow and Material are optional pass-through fields that
// only appear when a producer set them.
type Entity struct {
	ID       string  `json:"id"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Z        float64 `json:"z"`
	Scale    float64 `json:"scale"`
	Rotation float64 `json:"rotation"`
	Band     int     `json:"band"`
	Visible  bool    `json:"visible"`

	Brightness    *int   `json:"brightness,omitempty"`
	Interpolation *int   `json:"interpolation,omitempty"`
	Glow          *bool  `json:"glow,omitempty"`
	Material      string `json:"material,omitempty"`
}

// Particle is a one-shot particle burst attached to a renderer update.
type Particle struct {
	Effect    string  `json:"effect"`
	Count     int     `json:"count"`
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	Z         float64 `json:"z"`
	Intensity float64 `json:"intensity"`
}
