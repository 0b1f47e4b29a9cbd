package sentinelhub

import (
	"fmt"

	"github.com/samirrijal/eudrsat/internal/core/domain"
)

// CRS84 is the lon/lat axis order the bbox is sent in.
const CRS84 = "http://www.opengis.net/def/crs/OGC/1.3/CRS84"

const evalscriptTemplate = `//VERSION=3
function setup() {
  return {
    input: ["B02", "B03", "B04"],
    output: { bands: 3 }
  };
}

function evaluatePixel(sample) {
  return [%[1]g * sample.B04, %[1]g * sample.B03, %[1]g * sample.B02];
}
`

// TrueColorEvalscript renders bands B04, B03, B02 as RGB scaled by gain.
func TrueColorEvalscript(gain float64) string {
	return fmt.Sprintf(evalscriptTemplate, gain)
}

type processRequest struct {
	Input      processInput  `json:"input"`
	Output     processOutput `json:"output"`
	Evalscript string        `json:"evalscript"`
}

type processInput struct {
	Bounds inputBounds `json:"bounds"`
	Data   []inputData `json:"data"`
}

type inputBounds struct {
	BBox       [4]float64       `json:"bbox"`
	Properties boundsProperties `json:"properties"`
}

type boundsProperties struct {
	CRS string `json:"crs"`
}

type inputData struct {
	Type       string     `json:"type"`
	DataFilter dataFilter `json:"dataFilter"`
}

type dataFilter struct {
	TimeRange        timeRange `json:"timeRange"`
	MosaickingOrder  string    `json:"mosaickingOrder"`
	MaxCloudCoverage *float64  `json:"maxCloudCoverage,omitempty"`
}

type timeRange struct {
	From string `json:"from"`
	To   string `json:"to"`
}

type processOutput struct {
	Width     int              `json:"width"`
	Height    int              `json:"height"`
	Responses []outputResponse `json:"responses"`
}

type outputResponse struct {
	Identifier string       `json:"identifier"`
	Format     outputFormat `json:"format"`
}

type outputFormat struct {
	Type string `json:"type"`
}

type tokenResponse struct {
	AccessToken      string `json:"access_token"`
	ExpiresIn        int    `json:"expires_in"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

// newProcessRequest maps an imagery request onto the Process API body. The
// period covers whole UTC days.
func newProcessRequest(req domain.ImageryRequest, collection, evalscript string) processRequest {
	var maxCC *float64
	if req.MaxCloudCoverage != nil {
		v := *req.MaxCloudCoverage
		maxCC = &v
	}
	return processRequest{
		Input: processInput{
			Bounds: inputBounds{
				BBox:       req.Bounds.BBox(),
				Properties: boundsProperties{CRS: CRS84},
			},
			Data: []inputData{{
				Type: collection,
				DataFilter: dataFilter{
					TimeRange: timeRange{
						From: req.Period.From.String() + "T00:00:00Z",
						To:   req.Period.To.String() + "T23:59:59Z",
					},
					MosaickingOrder:  "leastCC",
					MaxCloudCoverage: maxCC,
				},
			}},
		},
		Output: processOutput{
			Width:  req.Width,
			Height: req.Height,
			Responses: []outputResponse{{
				Identifier: "default",
				Format:     outputFormat{Type: req.Format},
			}},
		},
		Evalscript: evalscript,
	}
}
