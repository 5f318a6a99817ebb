package scanner

import (
	"bytes"
	"image"
	"image/png"
	"testing"

	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/qrcode"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQRDecoder_RoundTrip(t *testing.T) {
	matrix, err := qrcode.NewQRCodeWriter().Encode("ABC123-XYZ789", gozxing.BarcodeFormat_QR_CODE, 250, 250, nil)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, matrix))

	img, err := ReadFrame(&buf)
	require.NoError(t, err)

	text, err := NewQRDecoder().Decode(img)
	require.NoError(t, err)
	assert.Equal(t, "ABC123-XYZ789", text)
}

func TestQRDecoder_BlankFrame(t *testing.T) {
	_, err := NewQRDecoder().Decode(image.NewGray(image.Rect(0, 0, 64, 64)))
	assert.ErrorIs(t, err, ErrNoCode)
}

func TestReadFrame_Garbage(t *testing.T) {
	_, err := ReadFrame(bytes.NewReader([]byte("not an image")))
	assert.Error(t, err)
}
