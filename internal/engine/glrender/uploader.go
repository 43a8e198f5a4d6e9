package glrender

import (
	"fmt"

	"github.com/go-gl/gl/v4.1-core/gl"
)

// TextureUploader creates GL textures for the texture tile cache.
// It must only be used on the thread owning the GL context.
type TextureUploader struct {
	// Clamp selects CLAMP_TO_EDGE wrapping, which keeps tile seams from bleeding.
	Clamp      bool
	Anisotropy float32

	live int
}

// Upload implements texcache.Uploader.
func (u *TextureUploader) Upload(pixels []byte, w, h int) (uint32, error) {
	if w <= 0 || h <= 0 || len(pixels) < w*h*4 {
		return 0, fmt.Errorf("upload: %d bytes for %dx%d RGBA", len(pixels), w, h)
	}

	var id uint32
	gl.GenTextures(1, &id)
	gl.BindTexture(gl.TEXTURE_2D, id)
	gl.TexImage2D(gl.TEXTURE_2D, 0, gl.RGBA8, int32(w), int32(h), 0, gl.RGBA, gl.UNSIGNED_BYTE, gl.Ptr(pixels))

	gl.GenerateMipmap(gl.TEXTURE_2D)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MIN_FILTER, gl.LINEAR_MIPMAP_LINEAR)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MAG_FILTER, gl.LINEAR)
	wrap := int32(gl.REPEAT)
	if u.Clamp {
		wrap = gl.CLAMP_TO_EDGE
	}
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_WRAP_S, wrap)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_WRAP_T, wrap)
	if u.Anisotropy > 1 {
		gl.TexParameterf(gl.TEXTURE_2D, gl.TEXTURE_MAX_ANISOTROPY, u.Anisotropy)
	}
	gl.BindTexture(gl.TEXTURE_2D, 0)

	if err := glError("texture upload"); err != nil {
		gl.DeleteTextures(1, &id)
		return 0, err
	}
	u.live++
	return id, nil
}

// Release implements texcache.Uploader.
func (u *TextureUploader) Release(id uint32) {
	if id == 0 {
		return
	}
	gl.DeleteTextures(1, &id)
	u.live--
}

// Live returns the number of textures uploaded and not yet released.
func (u *TextureUploader) Live() int { return u.live }

func glError(op string) error {
	if code := gl.GetError(); code != gl.NO_ERROR {
		return fmt.Errorf("%s: GL error 0x%x", op, code)
	}
	return nil
}
