package api

import (
	"bytes"
	"fmt"
	"net/http"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
)

// trackChart renders a quick HTML scatter of a loaded track using
// go-echarts: position path on X/Y, coloured by elapsed time. Debugging aid
// for judging downsample quality without the full map UI.
func (s *Server) trackChart(w http.ResponseWriter, r *http.Request) {
	entityID := r.PathValue("id")
	track := s.session.Registry.GetTrack(entityID)
	if track == nil {
		s.writeJSONError(w, http.StatusNotFound, "no track loaded for "+entityID)
		return
	}
	idx := track.Index()
	if idx.Len() == 0 {
		s.writeJSONError(w, http.StatusUnprocessableEntity, "track has no parseable samples")
		return
	}

	start, end, _ := idx.Span()
	spanSecs := float64(end-start) / float64(time.Second)

	data := make([]opts.ScatterData, 0, idx.Len())
	for i := 0; i < idx.Len(); i++ {
		sample := idx.Sample(i)
		elapsed := float64(idx.Instant(i)-start) / float64(time.Second)
		data = append(data, opts.ScatterData{Value: []interface{}{sample.X, sample.Y, elapsed}})
	}

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Entity Track", Theme: "dark", Width: "900px", Height: "900px"}),
		charts.WithTitleOpts(opts.Title{
			Title:    "Track " + entityID,
			Subtitle: fmt.Sprintf("points=%d span=%.0fs", idx.Len(), spanSecs),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "X (m)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Y (m)", NameLocation: "middle", NameGap: 30}),
		charts.WithVisualMapOpts(opts.VisualMap{
			Show:       opts.Bool(true),
			Calculable: opts.Bool(true),
			Min:        0,
			Max:        float32(spanSecs),
			Dimension:  "2",
			InRange:    &opts.VisualMapInRange{Color: []string{"#440154", "#3e4989", "#26828e", "#35b779", "#b5de2b", "#fde725"}},
		}),
	)

	scatter.AddSeries("positions", data, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 4}))

	var buf bytes.Buffer
	if err := scatter.Render(&buf); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("failed to render chart: %v", err))
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}
