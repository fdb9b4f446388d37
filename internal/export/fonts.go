/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package export

import (
	"fmt"
	"os"
	"sync"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
)

// textSize is the field text size in page pixels, matching the PDF.
const textSize = 12.0

var (
	goRegularOnce sync.Once
	goRegular     *opentype.Font
)

// GoRegular returns the embedded Go Regular font.
func GoRegular() *opentype.Font {
	goRegularOnce.Do(func() {
		f, err := opentype.Parse(goregular.TTF)
		if err == nil {
			goRegular = f
		}
	})
	return goRegular
}

// LoadFont parses a TrueType or OpenType file.
func LoadFont(path string) (*opentype.Font, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read font %s: %w", path, err)
	}
	f, err := opentype.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse font %s: %w", path, err)
	}
	return f, nil
}

// textFace sizes f for the raster scale. A nil font, or one that cannot be
// instantiated, falls back to the fixed 7x13 bitmap face.
func textFace(f *opentype.Font, scale float64) font.Face {
	if f != nil {
		face, err := opentype.NewFace(f, &opentype.FaceOptions{Size: textSize * scale, DPI: 72, Hinting: font.HintingFull})
		if err == nil {
			return face
		}
	}
	return basicfont.Face7x13
}
