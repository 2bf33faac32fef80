package bench

import (
	"fmt"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
)

// Result is the measurement of one method.
type Result struct {
	Method         Method        `json:"method" yaml:"method"`
	Width          int           `json:"width" yaml:"width"`
	Height         int           `json:"height" yaml:"height"`
	Buffers        int           `json:"buffers" yaml:"buffers"`
	Frames         int           `json:"frames" yaml:"frames"`
	Bytes          uint64        `json:"bytes" yaml:"bytes"`
	Elapsed        time.Duration `json:"elapsed" yaml:"elapsed"`
	FPS            float64       `json:"fps" yaml:"fps"`
	BytesPerSecond float64       `json:"bytes_per_second" yaml:"bytes_per_second"`

	// GainPercent is the framerate change relative to the first method of
	// the report. Nil for the baseline itself.
	GainPercent *float64 `json:"gain_percent,omitempty" yaml:"gain_percent,omitempty"`
}

func newResult(m Method, opts Options, elapsed time.Duration) Result {
	total := uint64(opts.FrameSize()) * uint64(opts.Frames)
	res := Result{
		Method:  m,
		Width:   opts.Width,
		Height:  opts.Height,
		Buffers: opts.Buffers,
		Frames:  opts.Frames,
		Bytes:   total,
		Elapsed: elapsed,
	}
	if secs := elapsed.Seconds(); secs > 0 {
		res.FPS = float64(opts.Frames) / secs
		res.BytesPerSecond = float64(total) / secs
	}
	return res
}

// Report is the ordered set of results of one run.
type Report []Result

func (r Report) computeGains() {
	if len(r) < 2 || r[0].FPS == 0 {
		return
	}
	base := r[0].FPS
	for i := 1; i < len(r); i++ {
		gain := (r[i].FPS - base) / base * 100
		r[i].GainPercent = &gain
	}
}

// Headers implements output.TableRenderer.
func (r Report) Headers() []string {
	return []string{"Method", "Resolution", "Buffers", "Frames", "Framerate", "Bandwidth", "Gain"}
}

// Rows implements output.TableRenderer.
func (r Report) Rows() [][]string {
	rows := make([][]string, 0, len(r))
	for _, res := range r {
		gain := "-"
		if res.GainPercent != nil {
			gain = fmt.Sprintf("%+.2f%%", *res.GainPercent)
		}
		rows = append(rows, []string{
			string(res.Method),
			fmt.Sprintf("%dx%d", res.Width, res.Height),
			strconv.Itoa(res.Buffers),
			strconv.Itoa(res.Frames),
			fmt.Sprintf("%.0f fps", res.FPS),
			humanize.IBytes(uint64(res.BytesPerSecond)) + "/s",
			gain,
		})
	}
	return rows
}
