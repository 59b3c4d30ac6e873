package canvasfile

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"regexp"
	"strings"
	"time"

	"github.com/codefionn/canvaschat/internal/fs"
	"github.com/codefionn/canvaschat/internal/userinput"
)

// GeneratedImagesDir is where generated images are stored, relative to the
// vault root.
const GeneratedImagesDir = "generated-images"

var unsafeName = regexp.MustCompile(`[^A-Za-z0-9_-]+`)

// Images resolves ![[...]] embeds against the vault and stores generated
// images in it.
type Images struct {
	fsys fs.FileSystem
	dir  string
	now  func() time.Time
}

// NewImages resolves embeds relative to the directory of canvasPath first
// and to the vault root second.
func NewImages(fsys fs.FileSystem, canvasPath string) *Images {
	return &Images{fsys: fsys, dir: path.Dir(canvasPath), now: time.Now}
}

// ResolveImage returns src as a scaled PNG data URL. Remote URLs are passed
// through. An embed size suffix ("image.png|300") is ignored.
func (im *Images) ResolveImage(ctx context.Context, src string) (string, error) {
	if i := strings.Index(src, "|"); i >= 0 {
		src = src[:i]
	}
	src = strings.TrimSpace(src)
	if strings.HasPrefix(src, "http://") || strings.HasPrefix(src, "https://") {
		return src, nil
	}

	candidates := []string{path.Join(im.dir, src), path.Clean(src)}
	var lastErr error
	for _, candidate := range candidates {
		raw, err := im.fsys.ReadFile(ctx, candidate)
		if err != nil {
			lastErr = err
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return "", err
		}
		return userinput.EncodeImage(raw)
	}
	return "", fmt.Errorf("image %q: %w", src, lastErr)
}

// SaveImage writes png below GeneratedImagesDir and returns its vault path.
func (im *Images) SaveImage(prefix string, png []byte) (string, error) {
	prefix = strings.Trim(unsafeName.ReplaceAllString(prefix, "-"), "-")
	if prefix == "" {
		prefix = "image"
	}
	name := fmt.Sprintf("%s_%s.png", prefix, im.now().UTC().Format("20060102-150405.000"))
	target := path.Join(GeneratedImagesDir, name)
	if err := im.fsys.WriteFile(context.Background(), target, png); err != nil {
		return "", fmt.Errorf("save generated image: %w", err)
	}
	return target, nil
}
