package types

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// ParameterSet is a complete, validated input to the prediction service.
// JSON keys match the backend's training feature names.
type ParameterSet struct {
	Temperature float64  `json:"Temparature" validate:"finite"`
	Humidity    float64  `json:"Humidity" validate:"finite"`
	Moisture    float64  `json:"Moisture" validate:"finite"`
	SoilType    SoilType `json:"Soil_Type" validate:"required,soiltype"`
	CropType    CropType `json:"Crop_Type" validate:"required,croptype"`
	Nitrogen    float64  `json:"Nitrogen" validate:"finite"`
	Potassium   float64  `json:"Potassium" validate:"finite"`
	Phosphorus  float64  `json:"Phosphorous" validate:"finite"`
}

// ParameterDraft is the live, possibly incomplete form. Nil numeric fields
// and empty closed-set fields have not been entered yet.
type ParameterDraft struct {
	Temperature *float64 `json:"Temparature,omitempty"`
	Humidity    *float64 `json:"Humidity,omitempty"`
	Moisture    *float64 `json:"Moisture,omitempty"`
	SoilType    SoilType `json:"Soil_Type,omitempty"`
	CropType    CropType `json:"Crop_Type,omitempty"`
	Nitrogen    *float64 `json:"Nitrogen,omitempty"`
	Potassium   *float64 `json:"Potassium,omitempty"`
	Phosphorus  *float64 `json:"Phosphorous,omitempty"`
}

// Clone returns a deep copy that shares no pointers with d.
func (d ParameterDraft) Clone() ParameterDraft {
	out := d
	out.Temperature = cloneFloat(d.Temperature)
	out.Humidity = cloneFloat(d.Humidity)
	out.Moisture = cloneFloat(d.Moisture)
	out.Nitrogen = cloneFloat(d.Nitrogen)
	out.Potassium = cloneFloat(d.Potassium)
	out.Phosphorus = cloneFloat(d.Phosphorus)
	return out
}

func (d *ParameterDraft) number(f Field) **float64 {
	switch f {
	case FieldTemperature:
		return &d.Temperature
	case FieldHumidity:
		return &d.Humidity
	case FieldMoisture:
		return &d.Moisture
	case FieldNitrogen:
		return &d.Nitrogen
	case FieldPotassium:
		return &d.Potassium
	case FieldPhosphorus:
		return &d.Phosphorus
	}
	return nil
}

// Set parses raw into field. An empty (or whitespace) raw clears the field.
// Numeric fields must parse as finite floats; closed-set values are matched
// case-insensitively onto their canonical spelling and otherwise kept verbatim
// so that Complete can report them.
func (d *ParameterDraft) Set(field Field, raw string) error {
	raw = strings.TrimSpace(raw)
	switch field {
	case FieldSoilType:
		d.SoilType = SoilType(canonical(raw, soilNames()))
		return nil
	case FieldCropType:
		d.CropType = CropType(canonical(raw, cropNames()))
		return nil
	}

	ptr := d.number(field)
	if ptr == nil {
		return NewValidationError(ErrCodeValidationUnknownField, string(field),
			fmt.Sprintf("unknown parameter %q", field))
	}
	if raw == "" {
		*ptr = nil
		return nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return NewValidationError(ErrCodeValidationNotNumeric, string(field),
			fmt.Sprintf("%s must be a finite number", field))
	}
	*ptr = &v
	return nil
}

// SetNumber stores v into a numeric field.
func (d *ParameterDraft) SetNumber(field Field, v float64) {
	if ptr := d.number(field); ptr != nil {
		*ptr = &v
	}
}

// Number returns the value of a numeric field.
func (d ParameterDraft) Number(field Field) (float64, bool) {
	ptr := d.number(field)
	if ptr == nil || *ptr == nil {
		return 0, false
	}
	return **ptr, true
}

// Missing lists fields that have not been entered, in form order.
func (d ParameterDraft) Missing() []Field {
	var missing []Field
	for _, f := range Fields {
		switch f {
		case FieldSoilType:
			if d.SoilType == "" {
				missing = append(missing, f)
			}
		case FieldCropType:
			if d.CropType == "" {
				missing = append(missing, f)
			}
		default:
			if _, ok := d.Number(f); !ok {
				missing = append(missing, f)
			}
		}
	}
	return missing
}

// Complete converts the draft into a ParameterSet. It fails if any field is
// missing or a closed-set field holds a value outside its set.
func (d ParameterDraft) Complete() (ParameterSet, error) {
	if missing := d.Missing(); len(missing) > 0 {
		names := make([]string, len(missing))
		for i, f := range missing {
			names[i] = string(f)
		}
		return ParameterSet{}, NewAppErrorWithDetails(
			ErrCodeValidationMissingField,
			"missing required parameters: "+strings.Join(names, ", "),
			nil,
			map[string]any{"fields": names},
		)
	}
	if !d.SoilType.Valid() {
		return ParameterSet{}, NewValidationError(ErrCodeValidationOutOfSet, string(FieldSoilType),
			fmt.Sprintf("unsupported soil type %q", d.SoilType))
	}
	if !d.CropType.Valid() {
		return ParameterSet{}, NewValidationError(ErrCodeValidationOutOfSet, string(FieldCropType),
			fmt.Sprintf("unsupported crop type %q", d.CropType))
	}
	return ParameterSet{
		Temperature: *d.Temperature,
		Humidity:    *d.Humidity,
		Moisture:    *d.Moisture,
		SoilType:    d.SoilType,
		CropType:    d.CropType,
		Nitrogen:    *d.Nitrogen,
		Potassium:   *d.Potassium,
		Phosphorus:  *d.Phosphorus,
	}, nil
}

// WeatherReading is a normalized current-conditions observation for a city.
// Nil fields are unknown; they are never defaulted to zero.
type WeatherReading struct {
	City             string   `json:"city"`
	Country          string   `json:"country,omitempty"`
	Temperature      *float64 `json:"temperature,omitempty"`
	Humidity         *float64 `json:"humidity,omitempty"`
	Pressure         *float64 `json:"pressure,omitempty"`
	RainfallLastHour *float64 `json:"rainfall,omitempty"`
	WindSpeed        *float64 `json:"wind_speed,omitempty"`
	Description      string   `json:"description,omitempty"`
	Icon             string   `json:"icon,omitempty"`
}

// Clone returns a deep copy of w. A nil receiver yields nil.
func (w *WeatherReading) Clone() *WeatherReading {
	if w == nil {
		return nil
	}
	out := *w
	out.Temperature = cloneFloat(w.Temperature)
	out.Humidity = cloneFloat(w.Humidity)
	out.Pressure = cloneFloat(w.Pressure)
	out.RainfallLastHour = cloneFloat(w.RainfallLastHour)
	out.WindSpeed = cloneFloat(w.WindSpeed)
	return &out
}

// ProbabilityTolerance bounds how far a distribution may stray from summing to 1.
const ProbabilityTolerance = 0.01

// ModelResult is one model's prediction. Probabilities is optional: models
// without a probability estimate only report a label.
type ModelResult struct {
	Model          string             `json:"-"`
	PredictedLabel string             `json:"prediction"`
	Probabilities  map[string]float64 `json:"probabilities,omitempty"`
}

// HasDistribution reports whether the model returned probabilities.
func (r ModelResult) HasDistribution() bool {
	return len(r.Probabilities) > 0
}

// TopProbability returns the largest probability, or 1 for label-only models.
func (r ModelResult) TopProbability() float64 {
	if !r.HasDistribution() {
		return 1
	}
	top := math.Inf(-1)
	for _, p := range r.Probabilities {
		if p > top {
			top = p
		}
	}
	return top
}

// Validate checks the structural invariants of a model result: a non-empty
// label and, when probabilities are present, values in [0,1] summing to 1
// within ProbabilityTolerance with the predicted label at the maximum.
func (r ModelResult) Validate() error {
	if strings.TrimSpace(r.PredictedLabel) == "" {
		return fmt.Errorf("model %q: empty prediction label", r.Model)
	}
	if !r.HasDistribution() {
		return nil
	}
	var sum float64
	for label, p := range r.Probabilities {
		if math.IsNaN(p) || p < 0 || p > 1 {
			return fmt.Errorf("model %q: probability %v for %q outside [0,1]", r.Model, p, label)
		}
		sum += p
	}
	if math.Abs(sum-1) > ProbabilityTolerance {
		return fmt.Errorf("model %q: probabilities sum to %.4f", r.Model, sum)
	}
	p, ok := r.Probabilities[r.PredictedLabel]
	if !ok {
		return fmt.Errorf("model %q: predicted label %q missing from distribution", r.Model, r.PredictedLabel)
	}
	// Ties are allowed; the label only has to share the maximum.
	if r.TopProbability()-p > 1e-9 {
		return fmt.Errorf("model %q: predicted label %q is not the most probable", r.Model, r.PredictedLabel)
	}
	return nil
}

// Clone returns a deep copy of r.
func (r ModelResult) Clone() ModelResult {
	out := r
	if r.Probabilities != nil {
		out.Probabilities = make(map[string]float64, len(r.Probabilities))
		for k, v := range r.Probabilities {
			out.Probabilities[k] = v
		}
	}
	return out
}

// Labels returns the distribution labels sorted by descending probability.
func (r ModelResult) Labels() []string {
	labels := make([]string, 0, len(r.Probabilities))
	for l := range r.Probabilities {
		labels = append(labels, l)
	}
	sort.SliceStable(labels, func(i, j int) bool {
		pi, pj := r.Probabilities[labels[i]], r.Probabilities[labels[j]]
		if pi != pj {
			return pi > pj
		}
		return labels[i] < labels[j]
	})
	return labels
}

// SoilHealth is the backend's qualitative soil assessment. Its text is
// localized server-side; the workflow carries it without interpretation.
type SoilHealth struct {
	HealthScore     int      `json:"health_score"`
	OverallStatus   string   `json:"overall_status"`
	Insights        []string `json:"insights"`
	Recommendations []string `json:"recommendations"`
}

// Known English status labels. Other languages return translated strings.
const (
	StatusExcellent = "Excellent"
	StatusGood      = "Good"
	StatusFair      = "Fair"
	StatusPoor      = "Poor"
)

// Validate checks the score range.
func (s SoilHealth) Validate() error {
	if s.HealthScore < 0 || s.HealthScore > 100 {
		return fmt.Errorf("soil health score %d outside [0,100]", s.HealthScore)
	}
	return nil
}

// Clone returns a deep copy of s. A nil receiver yields nil.
func (s *SoilHealth) Clone() *SoilHealth {
	if s == nil {
		return nil
	}
	out := *s
	out.Insights = append([]string(nil), s.Insights...)
	out.Recommendations = append([]string(nil), s.Recommendations...)
	return &out
}

// Document is a generated report ready to be saved or streamed.
type Document struct {
	Format      ReportFormat
	ContentType string
	Filename    string
	Data        []byte
}

// ReportFilename is the download name used for a report in the given format.
func ReportFilename(f ReportFormat) string {
	return "krushak_report." + f.Extension()
}

func cloneFloat(p *float64) *float64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// Float returns a pointer to v. Handy for building readings and drafts.
func Float(v float64) *float64 {
	return &v
}

func canonical(raw string, names []string) string {
	for _, n := range names {
		if strings.EqualFold(n, raw) {
			return n
		}
	}
	return raw
}

func soilNames() []string {
	out := make([]string, len(SoilTypes))
	for i, s := range SoilTypes {
		out[i] = string(s)
	}
	return out
}

func cropNames() []string {
	out := make([]string, len(CropTypes))
	for i, c := range CropTypes {
		out[i] = string(c)
	}
	return out
}

// ValidateCoordinates checks that lat and lon are a valid WGS84 position.
func ValidateCoordinates(lat, lon float64) error {
	if math.IsNaN(lat) || lat < -90 || lat > 90 {
		return NewValidationError(ErrCodeValidationCoordinates, "lat", "latitude must be between -90 and 90")
	}
	if math.IsNaN(lon) || lon < -180 || lon > 180 {
		return NewValidationError(ErrCodeValidationCoordinates, "lon", "longitude must be between -180 and 180")
	}
	return nil
}
