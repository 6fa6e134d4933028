package services

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"

	vision "cloud.google.com/go/vision/v2/apiv1"
	visionpb "cloud.google.com/go/vision/v2/apiv1/visionpb"
	"google.golang.org/api/option"

	"bioguard/models"
	"bioguard/utils"
)

// TextDetector returns the raw text printed on a photographed label.
type TextDetector interface {
	DetectText(ctx context.Context, image []byte) (string, error)
}

// LabelReading is what could be read off a package photo.
type LabelReading struct {
	Barcode     string             `json:"barcode,omitempty"`
	Ingredients []string           `json:"ingredients,omitempty"`
	Nutrients   models.NutrientRaw `json:"nutrients"`
	Text        string             `json:"-"`
}

func (r *LabelReading) Empty() bool {
	return r == nil || (r.Barcode == "" && len(r.Ingredients) == 0 && r.Nutrients.IsEmpty())
}

// LabelReader turns OCR text into a barcode, an ingredient list and label nutrients.
type LabelReader struct {
	detector TextDetector
	log      *utils.Logger
}

func NewLabelReader(detector TextDetector, log *utils.Logger) *LabelReader {
	if log == nil {
		log = utils.NopLogger()
	}
	return &LabelReader{detector: detector, log: log.With("service", "label_reader")}
}

func (l *LabelReader) Read(ctx context.Context, image []byte) (*LabelReading, error) {
	text, err := l.detector.DetectText(ctx, image)
	if err != nil {
		return nil, fmt.Errorf("label text detection: %w", err)
	}
	reading := ParseLabelText(text)
	l.log.Debug("label read",
		"chars", len(text),
		"barcode", reading.Barcode,
		"ingredients", len(reading.Ingredients),
	)
	return reading, nil
}

// GCPTextDetector runs Cloud Vision TEXT_DETECTION.
type GCPTextDetector struct {
	client  *vision.ImageAnnotatorClient
	timeout time.Duration
}

// GoogleClientOptions accepts either inline JSON credentials or a file path.
// Empty means application default credentials.
func GoogleClientOptions(creds string) []option.ClientOption {
	creds = strings.TrimSpace(creds)
	if creds == "" {
		return nil
	}
	if strings.HasPrefix(creds, "{") {
		return []option.ClientOption{option.WithCredentialsJSON([]byte(creds))}
	}
	return []option.ClientOption{option.WithCredentialsFile(creds)}
}

func NewGCPTextDetector(ctx context.Context, creds string, timeout time.Duration) (*GCPTextDetector, error) {
	client, err := vision.NewImageAnnotatorClient(ctx, GoogleClientOptions(creds)...)
	if err != nil {
		return nil, fmt.Errorf("vision client: %w", err)
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &GCPTextDetector{client: client, timeout: timeout}, nil
}

func (d *GCPTextDetector) Close() error {
	if d == nil || d.client == nil {
		return nil
	}
	return d.client.Close()
}

func (d *GCPTextDetector) DetectText(ctx context.Context, image []byte) (string, error) {
	if len(image) == 0 {
		return "", nil
	}
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	resp, err := d.client.BatchAnnotateImages(ctx, &visionpb.BatchAnnotateImagesRequest{
		Requests: []*visionpb.AnnotateImageRequest{{
			Image:    &visionpb.Image{Content: image},
			Features: []*visionpb.Feature{{Type: visionpb.Feature_TEXT_DETECTION}},
		}},
	})
	if err != nil {
		return "", fmt.Errorf("vision BatchAnnotateImages: %w", err)
	}
	if resp == nil || len(resp.Responses) == 0 || resp.Responses[0] == nil {
		return "", nil
	}
	r0 := resp.Responses[0]
	if r0.Error != nil && r0.Error.Message != "" {
		return "", fmt.Errorf("vision annotate error: %s", r0.Error.Message)
	}
	if fta := r0.FullTextAnnotation; fta != nil && strings.TrimSpace(fta.Text) != "" {
		return fta.Text, nil
	}
	if len(r0.TextAnnotations) > 0 && r0.TextAnnotations[0] != nil {
		return r0.TextAnnotations[0].Description, nil
	}
	return "", nil
}

var (
	barcodeRe       = regexp.MustCompile(`\b\d{8,14}\b`)
	spacedBarcodeRe = regexp.MustCompile(`\d(?:[ \-]?\d){7,13}`)
	kcalRe          = regexp.MustCompile(`(?i)(\d+(?:[.,]\d+)?)\s*kcal`)
	quantityRe      = regexp.MustCompile(`(?i)(\d+(?:[.,]\d+)?)\s*(mg|g)\b`)
	ingrHeadRe      = regexp.MustCompile(`(?i)ingredients?\s*[:：]`)
)

// ingredient lists end at the first of these markers
var ingredientStops = []string{
	"\n\n", ". ", ".\n", "nutrition", "allergen", "may contain", "contains:",
	"best before", "storage", "store in", "net wt", "net weight",
}

// ParseLabelText extracts what it can from OCR text. Missing parts stay empty.
func ParseLabelText(text string) *LabelReading {
	r := &LabelReading{Text: text}
	r.Barcode = findBarcode(text)
	r.Ingredients = findIngredients(text)
	r.Nutrients = findLabelNutrients(text)
	return r
}

func findBarcode(text string) string {
	candidates := append(barcodeRe.FindAllString(text, -1), spacedBarcodeRe.FindAllString(text, -1)...)
	for _, m := range candidates {
		digits := strings.Map(func(r rune) rune {
			if r >= '0' && r <= '9' {
				return r
			}
			return -1
		}, m)
		switch len(digits) {
		case 8, 12, 13, 14:
			if validGTIN(digits) {
				return digits
			}
		}
	}
	return ""
}

// validGTIN checks the mod-10 check digit shared by EAN-8, UPC-A, EAN-13 and GTIN-14.
func validGTIN(code string) bool {
	if len(code) < 8 {
		return false
	}
	sum := 0
	weight := 3
	for i := len(code) - 2; i >= 0; i-- {
		sum += int(code[i]-'0') * weight
		weight = 4 - weight
	}
	return (10-sum%10)%10 == int(code[len(code)-1]-'0')
}

func findIngredients(text string) []string {
	loc := ingrHeadRe.FindStringIndex(text)
	if loc == nil {
		return nil
	}
	rest := text[loc[1]:]
	lower := strings.ToLower(rest)
	end := len(rest)
	for _, stop := range ingredientStops {
		if i := strings.Index(lower, stop); i >= 0 && i < end {
			end = i
		}
	}
	var kept []string
	for i, line := range strings.Split(rest[:end], "\n") {
		// a line of digits (barcode, weight) after the list ends it
		if i > 0 && !strings.ContainsFunc(line, unicode.IsLetter) {
			break
		}
		kept = append(kept, line)
	}
	body := strings.Join(strings.Fields(strings.Join(kept, " ")), " ")
	return splitIngredients(body)
}

func findLabelNutrients(text string) models.NutrientRaw {
	var raw models.NutrientRaw
	if m := kcalRe.FindStringSubmatch(text); m != nil {
		raw.Calories = parseDecimal(m[1])
	}

	var salt *float64
	for _, line := range strings.Split(text, "\n") {
		l := strings.ToLower(line)
		switch {
		case strings.Contains(l, "carbohydrate"):
			setOnce(&raw.Carbohydrates, grams(line))
		case strings.Contains(l, "sugar"):
			setOnce(&raw.Sugars, grams(line))
		case strings.Contains(l, "protein"):
			setOnce(&raw.Protein, grams(line))
		case strings.Contains(l, "sodium"):
			setOnce(&raw.Sodium, milligrams(line))
		case strings.Contains(l, "salt"):
			setOnce(&salt, grams(line))
		case strings.Contains(l, "fat") && !strings.Contains(l, "saturate") && !strings.Contains(l, "trans"):
			setOnce(&raw.Fat, grams(line))
		}
	}
	if raw.Sodium == nil && salt != nil {
		raw.Sodium = models.Float(*salt * 400) // 2.5 g salt per g sodium, in mg
	}
	return raw
}

func setOnce(dst **float64, v *float64) {
	if *dst == nil && v != nil {
		*dst = v
	}
}

// grams returns the first quantity on the line, converted to grams.
func grams(line string) *float64 {
	m := quantityRe.FindStringSubmatch(line)
	if m == nil {
		return nil
	}
	v := parseDecimal(m[1])
	if v != nil && strings.EqualFold(m[2], "mg") {
		v = models.Float(*v / 1000)
	}
	return v
}

// milligrams returns the first quantity on the line, converted to mg.
func milligrams(line string) *float64 {
	m := quantityRe.FindStringSubmatch(line)
	if m == nil {
		return nil
	}
	v := parseDecimal(m[1])
	if v != nil && strings.EqualFold(m[2], "g") {
		v = models.Float(*v * 1000)
	}
	return v
}

func parseDecimal(s string) *float64 {
	v, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", "."), 64)
	if err != nil {
		return nil
	}
	return &v
}
