package dto

type PrefetchRequest struct {
	Provider     string  `json:"provider"`
	URLTemplate  string  `json:"url_template"`
	Subdomains   string  `json:"subdomains"`
	North        float64 `json:"north" validate:"gte=-90,lte=90"`
	South        float64 `json:"south" validate:"gte=-90,lte=90,ltefield=North"`
	West         float64 `json:"west"`
	East         float64 `json:"east"`
	ZoomMin      int     `json:"zoom_min" validate:"gte=0,lte=22"`
	ZoomMax      int     `json:"zoom_max" validate:"gte=0,lte=22,gtefield=ZoomMin"`
	Concurrency  int     `json:"concurrency" validate:"gte=0,lte=32"`
	RetryCount   *int    `json:"retry_count" validate:"omitempty,gte=0,lte=10"`
	RetryDelayMs *int    `json:"retry_delay_ms" validate:"omitempty,gte=0,lte=60000"`
}

type NetworkRequest struct {
	Online *bool `json:"online" validate:"required"`
}

type QuotaRequest struct {
	MaxBytes int64 `json:"max_bytes" validate:"gt=0"`
}
