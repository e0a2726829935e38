package controllers

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"storefront-api/utils"

	"github.com/google/uuid"
)

const (
	maxImageBytes   = 5 << 20
	maxUploadMemory = 32 << 20
	UploadURLPrefix = "/uploads/"
)

var allowedImageExts = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".webp": true, ".gif": true,
}

// UploadController stores product and category images on local disk
type UploadController struct {
	Dir string
}

func NewUploadController(dir string) *UploadController {
	return &UploadController{Dir: dir}
}

func checkImage(fh *multipart.FileHeader) error {
	ext := strings.ToLower(filepath.Ext(fh.Filename))
	if !allowedImageExts[ext] {
		return fmt.Errorf("%s: only jpg, jpeg, png, webp and gif images are allowed", fh.Filename)
	}
	if fh.Size > maxImageBytes {
		return fmt.Errorf("%s: images must be 5MB or smaller", fh.Filename)
	}
	return nil
}

func (uc *UploadController) save(fh *multipart.FileHeader) (string, error) {
	src, err := fh.Open()
	if err != nil {
		return "", err
	}
	defer src.Close()

	name := uuid.New().String() + strings.ToLower(filepath.Ext(fh.Filename))
	dst, err := os.Create(filepath.Join(uc.Dir, name))
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return "", err
	}
	return name, dst.Close()
}

// UploadImages accepts the multipart "images" field. Every file is checked
// before any is written.
func (uc *UploadController) UploadImages(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			utils.WriteError(w, http.StatusRequestEntityTooLarge, "Upload too large")
			return
		}
		utils.WriteJSON(w, http.StatusBadRequest, utils.M{"message": "Invalid upload", "error": err.Error()})
		return
	}
	defer r.MultipartForm.RemoveAll()

	files := r.MultipartForm.File["images"]
	if len(files) == 0 {
		utils.WriteError(w, http.StatusBadRequest, "No images uploaded")
		return
	}
	for _, fh := range files {
		if err := checkImage(fh); err != nil {
			utils.WriteError(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	if err := os.MkdirAll(uc.Dir, 0o755); err != nil {
		utils.WriteServerError(w, "Error saving images", err)
		return
	}

	urls := make([]string, 0, len(files))
	for _, fh := range files {
		name, err := uc.save(fh)
		if err != nil {
			utils.WriteServerError(w, "Error saving images", err)
			return
		}
		urls = append(urls, UploadURLPrefix+name)
	}
	utils.WriteJSON(w, http.StatusCreated, utils.M{"message": "Images uploaded", "urls": urls})
}
