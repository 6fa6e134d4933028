package controllers

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"bioguard/middlewares"
	"bioguard/models"
	"bioguard/services"
	"bioguard/utils"

	"github.com/gin-gonic/gin"
)

const defaultMaxImageBytes = 8 << 20

type ScanController struct {
	Pipeline      *services.ScanPipeline
	MaxImageBytes int64
}

func NewScanController(p *services.ScanPipeline) *ScanController {
	return &ScanController{Pipeline: p, MaxImageBytes: defaultMaxImageBytes}
}

type scanJSONReq struct {
	ImageBase64      string   `json:"image_base64"`
	Barcode          string   `json:"barcode"`
	Query            string   `json:"query"`
	VisionProvider   string   `json:"vision_provider"`
	PreferredSources []string `json:"preferred_sources"`
}

var errImageTooLarge = errors.New("image too large")

// readScanInput accepts multipart (image file + form fields) or JSON with a
// base64 image.
func (sc *ScanController) readScanInput(c *gin.Context) (services.ScanInput, error) {
	in := services.ScanInput{UserID: middlewares.UserID(c)}

	if strings.HasPrefix(c.ContentType(), "multipart/") {
		in.Barcode = c.PostForm("barcode")
		in.Query = c.PostForm("query")
		in.VisionProvider = c.PostForm("vision_provider")
		in.PreferredSources = models.SplitList(c.PostForm("sources"))
		fh, err := c.FormFile("image")
		if errors.Is(err, http.ErrMissingFile) {
			return in, nil
		}
		if err != nil {
			return in, err
		}
		if fh.Size > sc.MaxImageBytes {
			return in, errImageTooLarge
		}
		f, err := fh.Open()
		if err != nil {
			return in, err
		}
		defer f.Close()
		in.Image, err = io.ReadAll(io.LimitReader(f, sc.MaxImageBytes+1))
		if err != nil {
			return in, err
		}
		if int64(len(in.Image)) > sc.MaxImageBytes {
			return in, errImageTooLarge
		}
		return in, nil
	}

	var req scanJSONReq
	if err := c.ShouldBindJSON(&req); err != nil {
		return in, err
	}
	img, err := utils.DecodeImage(req.ImageBase64)
	if err != nil {
		return in, err
	}
	if int64(len(img)) > sc.MaxImageBytes {
		return in, errImageTooLarge
	}
	in.Image = img
	in.Barcode = req.Barcode
	in.Query = req.Query
	in.VisionProvider = req.VisionProvider
	in.PreferredSources = req.PreferredSources
	return in, nil
}

// POST /scan
func (sc *ScanController) Analyze(c *gin.Context) {
	in, err := sc.readScanInput(c)
	if errors.Is(err, errImageTooLarge) {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body: " + err.Error()})
		return
	}

	res, err := sc.Pipeline.Analyze(c.Request.Context(), in)
	switch {
	case errors.Is(err, services.ErrEmptyScan):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, services.ErrScanAbandoned):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusOK, res)
	}
}

// POST /scan/detect
func (sc *ScanController) Detect(c *gin.Context) {
	state := sc.Pipeline.Tracker().Detect(middlewares.UserID(c))
	c.JSON(http.StatusOK, gin.H{"state": state})
}

// GET /scan/state
func (sc *ScanController) State(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"state": sc.Pipeline.Tracker().State(middlewares.UserID(c))})
}

// DELETE /scan/active
func (sc *ScanController) Cancel(c *gin.Context) {
	uid := middlewares.UserID(c)
	if !sc.Pipeline.Tracker().Cancel(uid) {
		c.JSON(http.StatusNotFound, gin.H{"error": "no scan in progress"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"state": sc.Pipeline.Tracker().State(uid)})
}
