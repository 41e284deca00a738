package pricing

// ServiceLine is a priced service in a package.
type ServiceLine struct {
	ID         string  `json:"id,omitempty"`
	Name       string  `json:"nombre"`
	Price      float64 `json:"precio"`
	FreeMonths int     `json:"mesesGratis"`
	PaidMonths int     `json:"mesesPago"`
}

// Snapshot is the priced content of a package offering.
type Snapshot struct {
	Development   float64         `json:"desarrollo"`
	BaseServices  []ServiceLine   `json:"serviciosBase"`
	OtherServices []ServiceLine   `json:"otrosServicios"`
	Discounts     *DiscountConfig `json:"configDescuentos,omitempty"`
}

// DevelopmentBreakdown traces the development price through its discounts.
type DevelopmentBreakdown struct {
	Original      float64 `json:"original"`
	AfterCategory float64 `json:"conDescuentoCategoria"`
	Discounted    float64 `json:"conDescuento"`
}

// LineBreakdown is the discounted price of a single service line.
type LineBreakdown struct {
	Key        string  `json:"clave"`
	Name       string  `json:"nombre"`
	Original   float64 `json:"original"`
	Percent    float64 `json:"porcentaje"`
	Discounted float64 `json:"conDescuento"`
}

// ServicesBreakdown totals a list of service lines.
type ServicesBreakdown struct {
	Total      float64         `json:"total"`
	Discounted float64         `json:"conDescuento"`
	Lines      []LineBreakdown `json:"desglose"`
}

// Preview is the cost breakdown of a snapshot.
type Preview struct {
	Mode                 DiscountMode         `json:"tipoDescuento"`
	Development          DevelopmentBreakdown `json:"desarrollo"`
	BaseServices         ServicesBreakdown    `json:"serviciosBase"`
	OtherServices        ServicesBreakdown    `json:"otrosServicios"`
	SubtotalDiscounted   float64              `json:"subtotalConDescuentos"`
	DirectDiscountAmount float64              `json:"descuentoDirectoMonto"`
	TotalOriginal        float64              `json:"totalOriginal"`
	TotalDiscounted      float64              `json:"totalConDescuentos"`
	TotalSavings         float64              `json:"totalAhorro"`
	SavingsPercent       float64              `json:"porcentajeAhorro"`
}
