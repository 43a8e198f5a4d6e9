package texture

import (
	"errors"
	"fmt"
	"image"
)

// TGA image type constants.
const (
	TGATypeUncompressed = 2  // Uncompressed true-color
	TGATypeRLE          = 10 // RLE compressed true-color
)

var errTGATruncated = errors.New("TGA data truncated")

// DecodeTGA decodes an uncompressed or RLE true-color TGA image (24 or 32 bpp).
func DecodeTGA(data []byte) (*image.RGBA, error) {
	if len(data) < 18 {
		return nil, errTGATruncated
	}

	idLength := int(data[0])
	colorMapType := data[1]
	imageType := data[2]
	width := int(data[12]) | int(data[13])<<8
	height := int(data[14]) | int(data[15])<<8
	bpp := int(data[16])
	// bit 5 of the descriptor: rows stored top to bottom
	topToBottom := data[17]&0x20 != 0

	if colorMapType != 0 {
		return nil, fmt.Errorf("color-mapped TGA not supported")
	}
	if imageType != TGATypeUncompressed && imageType != TGATypeRLE {
		return nil, fmt.Errorf("unsupported TGA type %d", imageType)
	}
	if bpp != 24 && bpp != 32 {
		return nil, fmt.Errorf("unsupported TGA bit depth %d", bpp)
	}

	offset := 18 + idLength
	if offset > len(data) {
		return nil, errTGATruncated
	}

	d := tgaDecoder{
		img:         image.NewRGBA(image.Rect(0, 0, width, height)),
		src:         data[offset:],
		bpp:         bpp / 8,
		topToBottom: topToBottom,
	}

	var err error
	if imageType == TGATypeUncompressed {
		err = d.raw(width * height)
	} else {
		err = d.rle()
	}
	if err != nil {
		return nil, err
	}
	return d.img, nil
}

type tgaDecoder struct {
	img         *image.RGBA
	src         []byte
	pos         int
	bpp         int
	pixel       int
	topToBottom bool
}

// next reads one BGR(A) pixel from the stream.
func (d *tgaDecoder) next() ([4]uint8, bool) {
	if d.pos+d.bpp > len(d.src) {
		return [4]uint8{}, false
	}
	p := d.src[d.pos:]
	c := [4]uint8{p[2], p[1], p[0], 255}
	if d.bpp == 4 {
		c[3] = p[3]
	}
	d.pos += d.bpp
	return c, true
}

// put writes c at the next pixel position, flipping bottom-up images.
func (d *tgaDecoder) put(c [4]uint8) {
	w := d.img.Rect.Dx()
	h := d.img.Rect.Dy()
	x := d.pixel % w
	y := d.pixel / w
	if !d.topToBottom {
		y = h - 1 - y
	}
	i := d.img.PixOffset(x, y)
	copy(d.img.Pix[i:i+4], c[:])
	d.pixel++
}

func (d *tgaDecoder) raw(n int) error {
	for range n {
		c, ok := d.next()
		if !ok {
			return errTGATruncated
		}
		d.put(c)
	}
	return nil
}

// rle decodes run-length packets. A short stream leaves the remaining pixels transparent.
func (d *tgaDecoder) rle() error {
	total := d.img.Rect.Dx() * d.img.Rect.Dy()
	for d.pixel < total && d.pos < len(d.src) {
		packet := d.src[d.pos]
		d.pos++
		count := min(int(packet&0x7F)+1, total-d.pixel)

		if packet&0x80 == 0 {
			for range count {
				c, ok := d.next()
				if !ok {
					return nil
				}
				d.put(c)
			}
			continue
		}

		c, ok := d.next()
		if !ok {
			return nil
		}
		for range count {
			d.put(c)
		}
	}
	return nil
}
