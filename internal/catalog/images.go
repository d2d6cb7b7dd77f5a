package catalog

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const (
	productImagesPrefix = "product-images"
	maxImageBytes       = 5 << 20
)

var (
	ErrImageNotFound = errors.New("image not found")
	ErrForeignImage  = errors.New("image is not managed by this store")
	ErrNotAnImage    = errors.New("upload is not an image")
)

// ImageStore keeps product images and hands out the URLs stored on products.
type ImageStore interface {
	Put(ctx context.Context, filename string, r io.Reader) (string, error)
	Delete(ctx context.Context, url string) error
}

// DiskImages stores images below Dir and serves them under PublicURL.
type DiskImages struct {
	Dir       string
	PublicURL string

	now func() time.Time
}

func NewDiskImages(dir, publicURL string) (*DiskImages, error) {
	if err := os.MkdirAll(filepath.Join(dir, productImagesPrefix), 0o755); err != nil {
		return nil, fmt.Errorf("create image dir: %w", err)
	}
	return &DiskImages{
		Dir:       dir,
		PublicURL: strings.TrimRight(publicURL, "/"),
		now:       time.Now,
	}, nil
}

func (d *DiskImages) Put(ctx context.Context, filename string, r io.Reader) (string, error) {
	head := make([]byte, 512)
	n, err := io.ReadFull(r, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
		if errors.Is(err, io.EOF) {
			return "", ErrNotAnImage
		}
		return "", err
	}
	head = head[:n]
	if !strings.HasPrefix(http.DetectContentType(head), "image/") {
		return "", ErrNotAnImage
	}

	key := path.Join(productImagesPrefix, strconv.FormatInt(d.now().UnixNano(), 10)+"_"+sanitizeName(filename))
	dst := filepath.Join(d.Dir, filepath.FromSlash(key))

	f, err := os.OpenFile(dst, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return "", fmt.Errorf("create image: %w", err)
	}

	written, err := io.Copy(f, io.MultiReader(bytes.NewReader(head), io.LimitReader(r, maxImageBytes+1-int64(n))))
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil && written > maxImageBytes {
		err = fmt.Errorf("image exceeds %d bytes", maxImageBytes)
	}
	if err != nil {
		_ = os.Remove(dst)
		return "", err
	}

	return d.PublicURL + "/" + key, nil
}

func (d *DiskImages) Delete(ctx context.Context, url string) error {
	key, ok := strings.CutPrefix(url, d.PublicURL+"/")
	if !ok || !strings.HasPrefix(key, productImagesPrefix+"/") || strings.Contains(key, "..") {
		return ErrForeignImage
	}

	err := os.Remove(filepath.Join(d.Dir, filepath.FromSlash(key)))
	if errors.Is(err, os.ErrNotExist) {
		return ErrImageNotFound
	}
	return err
}

// Handler serves stored images; mount it at PublicURL.
func (d *DiskImages) Handler() http.Handler {
	return http.StripPrefix(d.PublicURL, http.FileServer(http.Dir(d.Dir)))
}

func sanitizeName(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	if s := strings.Trim(b.String(), "."); s != "" {
		return s
	}
	return "image"
}
