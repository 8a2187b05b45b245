package types

import "strings"

// SoilType is a member of the closed set of soil classes the models were trained on.
type SoilType string

const (
	SoilLoamy  SoilType = "Loamy"
	SoilClayey SoilType = "Clayey"
	SoilSandy  SoilType = "Sandy"
	SoilRed    SoilType = "Red"
	SoilBlack  SoilType = "Black"
)

// SoilTypes lists every accepted soil type in display order.
var SoilTypes = []SoilType{SoilLoamy, SoilClayey, SoilSandy, SoilRed, SoilBlack}

// Valid reports whether s is a member of SoilTypes.
func (s SoilType) Valid() bool {
	for _, v := range SoilTypes {
		if v == s {
			return true
		}
	}
	return false
}

// CropType is a member of the closed set of crops the models were trained on.
type CropType string

const (
	CropWheat       CropType = "Wheat"
	CropPaddy       CropType = "Paddy"
	CropPulses      CropType = "Pulses"
	CropSugarcane   CropType = "Sugarcane"
	CropMaize       CropType = "Maize"
	CropCotton      CropType = "Cotton"
	CropBarley      CropType = "Barley"
	CropTobacco     CropType = "Tobacco"
	CropGroundNuts  CropType = "Ground Nuts"
	CropMillets     CropType = "Millets"
	CropCoffee      CropType = "Coffee"
	CropPomegranate CropType = "Pomegranate"
	CropRice        CropType = "Rice"
	CropWatermelon  CropType = "Watermelon"
	CropKidneybeans CropType = "Kidneybeans"
	CropOrange      CropType = "Orange"
	CropOilSeeds    CropType = "Oil seeds"
)

// CropTypes lists every accepted crop type in display order.
var CropTypes = []CropType{
	CropWheat, CropPaddy, CropPulses, CropSugarcane, CropMaize, CropCotton,
	CropBarley, CropTobacco, CropGroundNuts, CropMillets, CropCoffee,
	CropPomegranate, CropRice, CropWatermelon, CropKidneybeans, CropOrange,
	CropOilSeeds,
}

// Valid reports whether c is a member of CropTypes.
func (c CropType) Valid() bool {
	for _, v := range CropTypes {
		if v == c {
			return true
		}
	}
	return false
}

// Language is a supported localization code. It only travels to the backend,
// which uses it for the text of soil-health insights and reports.
type Language string

const (
	LanguageEnglish Language = "en"
	LanguageHindi   Language = "hi"
	LanguageMarathi Language = "mr"
	LanguageTelugu  Language = "te"

	DefaultLanguage = LanguageEnglish
)

// Languages lists every supported language code.
var Languages = []Language{LanguageEnglish, LanguageHindi, LanguageMarathi, LanguageTelugu}

// NormalizeLanguage maps an arbitrary code onto a supported Language.
// Region suffixes are dropped ("hi-IN" -> "hi"); unsupported codes fall back to
// DefaultLanguage.
func NormalizeLanguage(code string) Language {
	code = strings.ToLower(strings.TrimSpace(code))
	if i := strings.IndexAny(code, "-_"); i > 0 {
		code = code[:i]
	}
	for _, l := range Languages {
		if string(l) == code {
			return l
		}
	}
	return DefaultLanguage
}

// ReportFormat selects the document type produced by the report service.
type ReportFormat string

const (
	ReportPDF   ReportFormat = "pdf"
	ReportExcel ReportFormat = "excel"
)

// ParseReportFormat validates a user-supplied format string.
func ParseReportFormat(s string) (ReportFormat, error) {
	switch ReportFormat(strings.ToLower(strings.TrimSpace(s))) {
	case ReportPDF:
		return ReportPDF, nil
	case ReportExcel:
		return ReportExcel, nil
	}
	return "", NewValidationError(ErrCodeValidationReportFormat, "format",
		"report format must be one of: pdf, excel")
}

// Extension returns the file extension (without dot) for the format.
func (f ReportFormat) Extension() string {
	if f == ReportExcel {
		return "xlsx"
	}
	return "pdf"
}

// ContentType returns the MIME type of documents in this format.
func (f ReportFormat) ContentType() string {
	if f == ReportExcel {
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	return "application/pdf"
}

// Field names one editable input of a ParameterDraft. The values double as
// the wire keys expected by the prediction service.
type Field string

const (
	FieldTemperature Field = "Temparature"
	FieldHumidity    Field = "Humidity"
	FieldMoisture    Field = "Moisture"
	FieldSoilType    Field = "Soil_Type"
	FieldCropType    Field = "Crop_Type"
	FieldNitrogen    Field = "Nitrogen"
	FieldPotassium   Field = "Potassium"
	FieldPhosphorus  Field = "Phosphorous"
)

// Fields lists every draft field in form order.
var Fields = []Field{
	FieldTemperature, FieldHumidity, FieldMoisture, FieldSoilType,
	FieldCropType, FieldNitrogen, FieldPotassium, FieldPhosphorus,
}

// ParseField accepts either the wire key or a case-insensitive alias
// ("temperature", "soil_type", "phosphorus").
func ParseField(s string) (Field, bool) {
	key := strings.ToLower(strings.TrimSpace(s))
	for _, f := range Fields {
		if strings.ToLower(string(f)) == key {
			return f, true
		}
	}
	switch key {
	case "temperature":
		return FieldTemperature, true
	case "soiltype", "soil":
		return FieldSoilType, true
	case "croptype", "crop":
		return FieldCropType, true
	case "phosphorus":
		return FieldPhosphorus, true
	}
	return "", false
}

// Numeric reports whether the field holds a number.
func (f Field) Numeric() bool {
	return f != FieldSoilType && f != FieldCropType
}

// Provenance records who last set a draft field.
type Provenance int

const (
	ProvenanceUnset Provenance = iota
	ProvenanceWeather
	ProvenanceUser
)

func (p Provenance) String() string {
	switch p {
	case ProvenanceWeather:
		return "weather"
	case ProvenanceUser:
		return "user"
	default:
		return "unset"
	}
}

// MarshalText renders the provenance as its name.
func (p Provenance) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}
