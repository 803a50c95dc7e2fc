package query

import (
	"context"
	"database/sql"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strconv"

	_ "modernc.org/sqlite"
)

// Status codes returned by SQLiteEngine.
const (
	CodeInput   = 1
	CodeDataset = 2
	CodeOutput  = 3
)

// OutputHeader is the first row of every result file.
var OutputHeader = []string{"refer_id", "poi_type", "lat", "lon", "delta_lat", "delta_lon", "distance", "tags"}

const (
	// The centre of the POI must lie inside the search box.
	strictQuery = `SELECT poi_type, lat, lon, d_lat, d_lon, tags FROM poi
		WHERE lat BETWEEN ? AND ? AND lon BETWEEN ? AND ?`
	// The extent of the POI must intersect the search box.
	looseQuery = `SELECT poi_type, lat, lon, d_lat, d_lon, tags FROM poi
		WHERE NOT ((lat - d_lat > ?2) OR (lat + d_lat < ?1) OR (lon - d_lon > ?4) OR (lon + d_lon < ?3))`
)

// Point is one row of the input file.
type Point struct {
	ID  int64
	Lat float64
	Lon float64
}

// Match is one POI found near a Point.
type Match struct {
	ReferID    int64
	Type       int
	Lat        float64
	Lon        float64
	DeltaLat   float64
	DeltaLon   float64
	DistanceKm float64
	Tags       string
}

// SQLiteEngine answers queries in-process by reading the poi table of a
// finalized dataset.
type SQLiteEngine struct {
	Logger *slog.Logger
}

// Query implements Engine.
func (e *SQLiteEngine) Query(ctx context.Context, inputPath, outputPath, datasetPath string, opts Options) int {
	points, err := ReadPoints(inputPath)
	if err != nil {
		e.log("reading query input", "path", inputPath, "error", err)
		return CodeInput
	}

	matches, err := e.search(ctx, datasetPath, points, opts)
	if err != nil {
		e.log("searching dataset", "path", datasetPath, "error", err)
		return CodeDataset
	}

	if err := WriteMatches(outputPath, matches); err != nil {
		e.log("writing query output", "path", outputPath, "error", err)
		return CodeOutput
	}
	return 0
}

func (e *SQLiteEngine) log(msg string, args ...any) {
	if e.Logger != nil {
		e.Logger.Error(msg, args...)
	}
}

func (e *SQLiteEngine) search(ctx context.Context, datasetPath string, points []Point, opts Options) ([]Match, error) {
	db, err := sql.Open("sqlite", readOnlyDSN(datasetPath))
	if err != nil {
		return nil, fmt.Errorf("query: open dataset %s: %w", datasetPath, err)
	}
	defer db.Close()
	db.SetMaxOpenConns(1)

	q := looseQuery
	if opts.Strict {
		q = strictQuery
	}
	stmt, err := db.PrepareContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("query: prepare: %w", err)
	}
	defer stmt.Close()

	span := kmToDegrees(opts.DistanceKm)
	var matches []Match
	for _, p := range points {
		rows, err := stmt.QueryContext(ctx,
			toDecimicro(p.Lat-span), toDecimicro(p.Lat+span),
			toDecimicro(p.Lon-span), toDecimicro(p.Lon+span))
		if err != nil {
			return nil, fmt.Errorf("query: point %d: %w", p.ID, err)
		}
		found, err := scanMatches(rows, p)
		if err != nil {
			return nil, fmt.Errorf("query: point %d: %w", p.ID, err)
		}
		for _, m := range found {
			if opts.Strict && m.DistanceKm > opts.DistanceKm {
				continue
			}
			matches = append(matches, m)
		}
	}
	return matches, nil
}

// readOnlyDSN returns a file: URI for path with reserved characters escaped.
func readOnlyDSN(path string) string {
	u := url.URL{Path: filepath.ToSlash(path)}
	return "file:" + u.EscapedPath() + "?mode=ro"
}

func scanMatches(rows *sql.Rows, p Point) ([]Match, error) {
	defer rows.Close()
	var out []Match
	for rows.Next() {
		var (
			typ                  int
			lat, lon, dLat, dLon int64
			tags                 sql.NullString
		)
		if err := rows.Scan(&typ, &lat, &lon, &dLat, &dLon, &tags); err != nil {
			return nil, err
		}
		m := Match{
			ReferID:  p.ID,
			Type:     typ,
			Lat:      fromDecimicro(lat),
			Lon:      fromDecimicro(lon),
			DeltaLat: fromDecimicro(dLat),
			DeltaLon: fromDecimicro(dLon),
			Tags:     tags.String,
		}
		m.DistanceKm = haversineKm(m.Lat, m.Lon, p.Lat, p.Lon)
		out = append(out, m)
	}
	return out, rows.Err()
}

// ReadPoints parses an input file with an id,lat,lon header.
func ReadPoints(path string) ([]Point, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = 3
	r.TrimLeadingSpace = true
	if _, err := r.Read(); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading header: %w", err)
	}

	var points []Point
	for line := 2; ; line++ {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			return points, nil
		}
		if err != nil {
			return nil, err
		}
		p, err := parsePoint(rec)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		points = append(points, p)
	}
}

func parsePoint(rec []string) (Point, error) {
	id, err := strconv.ParseInt(rec[0], 10, 64)
	if err != nil {
		return Point{}, fmt.Errorf("id: %w", err)
	}
	lat, err := strconv.ParseFloat(rec[1], 64)
	if err != nil {
		return Point{}, fmt.Errorf("lat: %w", err)
	}
	lon, err := strconv.ParseFloat(rec[2], 64)
	if err != nil {
		return Point{}, fmt.Errorf("lon: %w", err)
	}
	return Point{ID: id, Lat: lat, Lon: lon}, nil
}

// WriteMatches writes matches as CSV to path. The file appears under its
// final name only once fully written.
func WriteMatches(path string, matches []Match) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	w := csv.NewWriter(tmp)
	if err := w.Write(OutputHeader); err != nil {
		tmp.Close()
		return err
	}
	for _, m := range matches {
		row := []string{
			strconv.FormatInt(m.ReferID, 10),
			strconv.Itoa(m.Type),
			formatFloat(m.Lat),
			formatFloat(m.Lon),
			formatFloat(m.DeltaLat),
			formatFloat(m.DeltaLon),
			formatFloat(m.DistanceKm),
			m.Tags,
		}
		if err := w.Write(row); err != nil {
			tmp.Close()
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
