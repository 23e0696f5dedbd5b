package handlers

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"html/template"
	"image"
	"image/png"
	"io"
	"math"
	"net/http"
	"net/url"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/petermazzocco/go-denoise-project/internal/auth"
	"github.com/petermazzocco/go-denoise-project/internal/storage"
	"github.com/petermazzocco/go-denoise-project/internal/workflow"
)

type patchView struct {
	Index int
	Noisy template.URL
	Clean template.URL
}

type resultView struct {
	RawURL   string
	CleanURL string
	PSNR     string
	SSIM     string
	Patches  []patchView
}

type historyRow struct {
	UploadTime string
	Filename   string
	PSNR       string
	SSIM       string
}

type denoisePage struct {
	page
	Action      string
	WithPatches bool
	Result      *resultView
	History     []historyRow
}

func FormatPSNR(v float64) string {
	if math.IsInf(v, 1) {
		return "inf"
	}
	return fmt.Sprintf("%.2f", v)
}

func FormatSSIM(v float64) string {
	return fmt.Sprintf("%.4f", v)
}

func (h *Handler) newDenoisePage(r *http.Request, withPatches bool) *denoisePage {
	if withPatches {
		return &denoisePage{
			page:        h.newPage(r, "Upload Noisy Image for Denoising and Visualization", "/denoise/more"),
			Action:      "/denoise/more",
			WithPatches: true,
		}
	}
	return &denoisePage{
		page:   h.newPage(r, "Upload Noisy Image for Denoising", "/denoise"),
		Action: "/denoise",
	}
}

func (h *Handler) DenoiseForm(w http.ResponseWriter, r *http.Request) {
	h.denoiseForm(w, r, false)
}

func (h *Handler) MoreDenoiseForm(w http.ResponseWriter, r *http.Request) {
	h.denoiseForm(w, r, true)
}

func (h *Handler) denoiseForm(w http.ResponseWriter, r *http.Request, withPatches bool) {
	p := h.newDenoisePage(r, withPatches)
	userID, ok := auth.UserID(r.Context())
	if !ok {
		p.warn(msgLoginFirst)
		h.render(w, http.StatusUnauthorized, "denoise.html", p)
		return
	}
	h.loadHistory(r, p, userID)
	h.render(w, http.StatusOK, "denoise.html", p)
}

func (h *Handler) DenoiseHandler(w http.ResponseWriter, r *http.Request) {
	h.denoise(w, r, false)
}

func (h *Handler) MoreDenoiseHandler(w http.ResponseWriter, r *http.Request) {
	h.denoise(w, r, true)
}

func (h *Handler) denoise(w http.ResponseWriter, r *http.Request, withPatches bool) {
	p := h.newDenoisePage(r, withPatches)
	userID, loggedIn := auth.UserID(r.Context())
	if !loggedIn {
		p.warn(msgLoginFirst)
		h.render(w, http.StatusUnauthorized, "denoise.html", p)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)
	file, header, err := r.FormFile("image")
	if err != nil {
		p.fail("Please choose an image file (jpg, jpeg or png) to upload.")
		h.render(w, http.StatusBadRequest, "denoise.html", p)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		p.fail("Failed to read uploaded file.")
		h.render(w, http.StatusBadRequest, "denoise.html", p)
		return
	}

	result, err := h.workflow.Denoise(r.Context(), userID, loggedIn, header.Filename, data, withPatches)
	if err != nil {
		status := http.StatusUnprocessableEntity
		switch {
		case errors.Is(err, workflow.ErrUnsupportedType), errors.Is(err, workflow.ErrEmptyUpload):
			status = http.StatusBadRequest
		case errors.Is(err, storage.ErrKeyExhausted):
			status = http.StatusInternalServerError
		}
		h.log.Warn("denoise failed", zap.Uint("user_id", userID), zap.String("filename", header.Filename), zap.Error(err))
		p.fail(fmt.Sprintf("Could not denoise %s: %v", header.Filename, err))
		h.render(w, status, "denoise.html", p)
		return
	}

	view, err := h.resultView(result)
	if err != nil {
		h.log.Error("failed to encode patches", zap.Error(err))
		p.fail("Failed to render patches.")
		h.render(w, http.StatusInternalServerError, "denoise.html", p)
		return
	}
	p.Result = view
	if withPatches {
		p.success(msgSavedMore)
	} else {
		p.success(msgSaved)
	}
	h.loadHistory(r, p, userID)
	h.render(w, http.StatusOK, "denoise.html", p)
}

func (h *Handler) resultView(result *workflow.Result) (*resultView, error) {
	view := &resultView{
		RawURL:   fileURL(storage.KindRaw, result.RawPath),
		CleanURL: fileURL(storage.KindClean, result.CleanPath),
		PSNR:     FormatPSNR(result.Scores.PSNR),
		SSIM:     FormatSSIM(result.Scores.SSIM),
	}
	for i, patch := range result.Patches {
		noisy, err := dataURL(patch.Noisy)
		if err != nil {
			return nil, err
		}
		clean, err := dataURL(patch.Clean)
		if err != nil {
			return nil, err
		}
		view.Patches = append(view.Patches, patchView{Index: i + 1, Noisy: noisy, Clean: clean})
	}
	return view, nil
}

func (h *Handler) loadHistory(r *http.Request, p *denoisePage, userID uint) {
	uploads, err := h.workflow.History(r.Context(), userID, historyLimit)
	if err != nil {
		h.log.Error("failed to load upload history", zap.Error(err))
		return
	}
	for _, u := range uploads {
		row := historyRow{
			UploadTime: u.UploadTime.Format(time.DateTime),
			Filename:   filepath.Base(u.Filename),
			PSNR:       "-",
			SSIM:       "-",
		}
		if len(u.CleanImages) > 0 {
			row.PSNR = FormatPSNR(u.CleanImages[0].PSNR)
			row.SSIM = FormatSSIM(u.CleanImages[0].SSIM)
		}
		p.History = append(p.History, row)
	}
}

// FileHandler serves a stored image to the user who uploaded it.
func (h *Handler) FileHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserID(r.Context())
	if !ok {
		http.Error(w, "Not Authorized", http.StatusUnauthorized)
		return
	}
	path, err := h.workflow.FilePath(r.Context(), userID, storage.Kind(chi.URLParam(r, "kind")), chi.URLParam(r, "name"))
	if err != nil {
		if !errors.Is(err, workflow.ErrFileNotFound) {
			h.log.Error("failed to resolve file", zap.Error(err))
		}
		http.Error(w, "File not found", http.StatusNotFound)
		return
	}
	http.ServeFile(w, r, path)
}

func fileURL(kind storage.Kind, path string) string {
	return fmt.Sprintf("/files/%s/%s", kind, url.PathEscape(filepath.Base(path)))
}

func dataURL(img image.Image) (template.URL, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", err
	}
	return template.URL("data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes())), nil
}
