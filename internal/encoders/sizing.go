package encoders

import (
	"image"
	"math"

	"github.com/pkg/errors"
)

// H264SupportedProfile is the level offered to remote viewers
const H264SupportedProfile = "3.1"

var profileSizes = map[string][]image.Point{
	"3.1": {
		{1280, 720},
		{720, 576},
		{720, 480},
	},
}

//FindBestSizeForH264Profile picks the level size closest in aspect ratio to
//a surface; an exact or proportionally smaller match wins outright
func FindBestSizeForH264Profile(profile string, constraints image.Point) (image.Point, error) {
	sizes, exists := profileSizes[profile]
	if !exists {
		return image.Point{}, errors.Errorf("profile %s not supported", profile)
	}
	if constraints.X <= 0 || constraints.Y <= 0 {
		return image.Point{}, errors.Errorf("invalid surface size %v", constraints)
	}

	minRatioDiff := math.MaxFloat64
	var minRatioSize image.Point
	for _, size := range sizes {
		if size == constraints {
			return size, nil
		}
		lowerRes := size.X < constraints.X && size.Y < constraints.Y
		hRatio := float64(constraints.X) / float64(size.X)
		vRatio := float64(constraints.Y) / float64(size.Y)
		ratioDiff := math.Abs(hRatio - vRatio)
		if lowerRes && ratioDiff < 0.0001 {
			return size, nil
		} else if ratioDiff < minRatioDiff {
			minRatioDiff = ratioDiff
			minRatioSize = size
		}
	}
	return minRatioSize, nil
}
