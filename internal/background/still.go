package background

import (
	"bytes"
	"math/rand/v2"
	"net/http"
	"strconv"

	"github.com/rs/zerolog/log"
)

// MaxStillDimension bounds the size of a rendered still.
const MaxStillDimension = 2048

// RenderStill runs a fresh simulation on a width×height raster for frames
// frames and returns the raster holding the last one.
func RenderStill(width, height, frames int, rng *rand.Rand) *Raster {
	r := NewRaster()
	sim := New(r, FixedViewport{Width: width, Height: height}, rng)
	for range max(frames, 1) {
		sim.Frame()
	}
	return r
}

// StillHandler serves a PNG still of the background for clients without
// WebSocket support. Query parameters w, h and seed are optional.
func StillHandler(defaultWidth, defaultHeight int) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		width := clampQuery(q.Get("w"), defaultWidth)
		height := clampQuery(q.Get("h"), defaultHeight)

		var rng *rand.Rand
		if seed, err := strconv.ParseUint(q.Get("seed"), 10, 64); err == nil {
			rng = rand.New(rand.NewPCG(seed, seed))
		}

		var buf bytes.Buffer
		if err := RenderStill(width, height, 1, rng).EncodePNG(&buf); err != nil {
			log.Error().Err(err).Msg("[background] encode still failed")
			http.Error(w, "render failed", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Cache-Control", "no-store")
		w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
		_, _ = w.Write(buf.Bytes())
	})
}

func clampQuery(v string, def int) int {
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		return def
	}
	return min(n, MaxStillDimension)
}
