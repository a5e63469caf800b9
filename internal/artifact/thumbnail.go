package artifact

import (
	"context"
	"fmt"
	"image"
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"

	"media-library/internal/database"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

// thumbnailWidth is the fixed output width; height follows the source
// aspect ratio.
const thumbnailWidth = 200

// generateThumbnail decodes one image, scales it to the thumbnail width
// and stores it losslessly as <id>.png next to its siblings. The source
// dimensions and format are recorded as the asset's metadata.
func (c *Coordinator) generateThumbnail(ctx context.Context, item *database.PendingAsset) error {
	f, err := os.Open(item.Path)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", item.Path, err)
	}

	img, format, err := image.Decode(f)
	if closeErr := f.Close(); closeErr != nil && err == nil {
		err = closeErr
	}
	if err != nil {
		return fmt.Errorf("failed to decode %s: %w", item.Path, err)
	}

	bounds := img.Bounds()

	// Nearest neighbor keeps pixel art crisp and is the cheapest filter
	// for a fixed-width preview.
	thumb := imaging.Resize(img, thumbnailWidth, 0, imaging.NearestNeighbor)

	out := filepath.Join(c.thumbDir, fmt.Sprintf("%d.png", item.ID))
	if err := imaging.Save(thumb, out); err != nil {
		return fmt.Errorf("failed to save thumbnail for %s: %w", item.Path, err)
	}

	meta := database.ImageMeta(bounds.Dx(), bounds.Dy(), format)
	return c.db.SetThumbnail(ctx, item.ID, out, meta)
}
