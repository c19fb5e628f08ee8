package geo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/shared-ride/internal/models"
)

func TestQueryBoundsCoverCircle(t *testing.T) {
	centers := []models.Coordinate{
		{Lat: -6.175392, Lng: 106.827153},
		{Lat: 25.033, Lng: 121.565},
		{Lat: 59.9, Lng: 10.7},
		{Lat: -33.8688, Lng: 151.2093},
	}
	for _, center := range centers {
		for _, radius := range []float64{500, 3000, 10000} {
			bounds := QueryBounds(center, radius)
			require.NotEmpty(t, bounds)
			assert.LessOrEqual(t, len(bounds), 9)
			for bearing := 0.0; bearing < 360; bearing += 22.5 {
				p := Offset(center, bearing, radius*0.99)
				hash := Encode(p)
				covered := false
				for _, b := range bounds {
					if b.Contains(hash) {
						covered = true
						break
					}
				}
				assert.True(t, covered, "center=%v radius=%v bearing=%v hash=%s", center, radius, bearing, hash)
			}
		}
	}
}

func TestQueryBoundsShrinkWithRadius(t *testing.T) {
	c := models.Coordinate{Lat: 25.033, Lng: 121.565}
	small := QueryBounds(c, 200)
	large := QueryBounds(c, 20000)
	assert.Greater(t, len(small[0].Lo), len(large[0].Lo))
}

func TestBoundContains(t *testing.T) {
	b := Bound{Lo: "w2", Hi: "w2~"}
	assert.True(t, b.Contains("w2"))
	assert.True(t, b.Contains("w2zzzzzzz"))
	assert.False(t, b.Contains("w3"))
	assert.False(t, b.Contains("w1zzz"))
}
