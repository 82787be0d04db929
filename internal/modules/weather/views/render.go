package views

import (
	"embed"
	"errors"
	"html/template"
	"io"
	"io/fs"
	"math"
	"strconv"
	"time"

	"pwsrelay/internal/modules/weather/engine"
	"pwsrelay/internal/modules/weather/types"
)

//go:embed templates
var viewsFS embed.FS

var dashboardTmpl *template.Template

var funcs = template.FuncMap{
	"f1":      func(v float64) string { return strconv.FormatFloat(v, 'f', 1, 64) },
	"f2":      func(v float64) string { return strconv.FormatFloat(v, 'f', 2, 64) },
	"compass": CompassLabel,
}

// loadTemplatesFromFS loads dashboard templates from the given fs and dir.
// Used by LoadTemplates and by tests to simulate failure scenarios.
func loadTemplatesFromFS(fsys fs.FS, dir string) error {
	sub, err := fs.Sub(fsys, dir)
	if err != nil {
		return err
	}
	dashboardTmpl, err = template.New("views").Funcs(funcs).ParseFS(sub, "*.html", "partials/*.html")
	if err != nil {
		return err
	}
	return nil
}

// LoadTemplates loads embedded dashboard templates. Call during startup before
// serving requests; if it returns an error, do not start the server.
func LoadTemplates() error {
	return loadTemplatesFromFS(viewsFS, "templates")
}

// CompassLabel names the compass point nearest to deg.
func CompassLabel(deg float64) string {
	if math.IsNaN(deg) || math.IsInf(deg, 0) {
		return ""
	}
	i := int(math.Floor(math.Mod(deg, 360)/22.5+0.5)) % engine.CompassPoints
	if i < 0 {
		i += engine.CompassPoints
	}
	return engine.CompassLabel(i)
}

// StationConditions is the view model for one station card.
type StationConditions struct {
	StationID   string
	LastSeen    time.Time
	Observation *types.Observation
}

type DashboardData struct {
	Stations    []StationConditions
	GeneratedAt time.Time
}

func RenderDashboard(w io.Writer, data *DashboardData) error {
	if dashboardTmpl == nil {
		return errors.New("dashboard template not loaded: call views.LoadTemplates during startup")
	}
	return dashboardTmpl.ExecuteTemplate(w, "dashboard.html", data)
}

// RenderConditionsPartial executes only one station card into w.
func RenderConditionsPartial(w io.Writer, data *StationConditions) error {
	if dashboardTmpl == nil {
		return errors.New("dashboard template not loaded: call views.LoadTemplates during startup")
	}
	return dashboardTmpl.ExecuteTemplate(w, "conditions", data)
}
