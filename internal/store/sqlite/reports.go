package sqlite

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"trendsys/internal/model"
	"trendsys/internal/trend"

	"github.com/jmoiron/sqlx"
)

type reportRow struct {
	ID               string          `db:"id"`
	Exchange         string          `db:"exchange"`
	Token            string          `db:"token"`
	TF               int             `db:"tf"`
	TS               int64           `db:"ts"`
	Points           int             `db:"points"`
	Config           string          `db:"config"`
	Peaks            string          `db:"peaks"`
	Valleys          string          `db:"valleys"`
	PeakSlope        sql.NullFloat64 `db:"peak_slope"`
	PeakIntercept    sql.NullFloat64 `db:"peak_intercept"`
	ValleySlope      sql.NullFloat64 `db:"valley_slope"`
	ValleyIntercept  sql.NullFloat64 `db:"valley_intercept"`
	OverallSlope     sql.NullFloat64 `db:"overall_slope"`
	OverallIntercept sql.NullFloat64 `db:"overall_intercept"`
}

type segmentRow struct {
	ReportID     string  `db:"report_id"`
	Seq          int     `db:"seq"`
	Start        int     `db:"start_index"`
	End          int     `db:"end_index"`
	Slope        float64 `db:"slope"`
	Intercept    float64 `db:"intercept"`
	AdjRSquared  float64 `db:"adj_r_squared"`
	RMSE         float64 `db:"rmse"`
	DurbinWatson float64 `db:"durbin_watson"`
	Reliable     bool    `db:"reliable"`
}

func lineColumns(l *trend.TrendLine) (slope, intercept sql.NullFloat64) {
	if l == nil {
		return
	}
	return sql.NullFloat64{Float64: l.Slope, Valid: true}, sql.NullFloat64{Float64: l.Intercept, Valid: true}
}

func lineFromColumns(slope, intercept sql.NullFloat64) *trend.TrendLine {
	if !slope.Valid || !intercept.Valid {
		return nil
	}
	return &trend.TrendLine{Slope: slope.Float64, Intercept: intercept.Float64}
}

func encodeExtrema(e []trend.Extremum) (string, error) {
	if e == nil {
		e = []trend.Extremum{}
	}
	b, err := json.Marshal(e)
	return string(b), err
}

// SaveReport archives a report and its segments in one transaction.
// Saving the same report ID again replaces it.
func (s *Store) SaveReport(r *model.TrendReport) error {
	peaks, err := encodeExtrema(r.Peaks)
	if err != nil {
		return fmt.Errorf("encode peaks: %w", err)
	}
	valleys, err := encodeExtrema(r.Valleys)
	if err != nil {
		return fmt.Errorf("encode valleys: %w", err)
	}

	row := reportRow{
		ID: r.ID, Exchange: r.Exchange, Token: r.Token, TF: r.TF, TS: r.TS.Unix(),
		Points: r.Points, Config: r.Config, Peaks: peaks, Valleys: valleys,
	}
	row.PeakSlope, row.PeakIntercept = lineColumns(r.PeakTrend)
	row.ValleySlope, row.ValleyIntercept = lineColumns(r.ValleyTrend)
	row.OverallSlope, row.OverallIntercept = lineColumns(r.OverallTrend)

	tx, err := s.db.Beginx()
	if err != nil {
		return err
	}
	if _, err := tx.Exec(`DELETE FROM trend_segments WHERE report_id = ?`, r.ID); err != nil {
		tx.Rollback()
		return fmt.Errorf("sqlite clear segments: %w", err)
	}
	_, err = tx.NamedExec(`
		INSERT OR REPLACE INTO trend_reports (id, exchange, token, tf, ts, points, config, peaks, valleys,
			peak_slope, peak_intercept, valley_slope, valley_intercept, overall_slope, overall_intercept)
		VALUES (:id, :exchange, :token, :tf, :ts, :points, :config, :peaks, :valleys,
			:peak_slope, :peak_intercept, :valley_slope, :valley_intercept, :overall_slope, :overall_intercept)
	`, row)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("sqlite insert report: %w", err)
	}

	for i, seg := range r.Segments {
		_, err := tx.NamedExec(`
			INSERT INTO trend_segments (report_id, seq, start_index, end_index, slope, intercept,
				adj_r_squared, rmse, durbin_watson, reliable)
			VALUES (:report_id, :seq, :start_index, :end_index, :slope, :intercept,
				:adj_r_squared, :rmse, :durbin_watson, :reliable)
		`, segmentRow{
			ReportID: r.ID, Seq: i, Start: seg.Start, End: seg.End,
			Slope: seg.Slope, Intercept: seg.Intercept,
			AdjRSquared: seg.AdjustedRSquared, RMSE: seg.RMSE, DurbinWatson: seg.DurbinWatson,
			Reliable: seg.Reliable,
		})
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("sqlite insert segment %d: %w", i, err)
		}
	}
	return tx.Commit()
}

// ReadReports returns up to limit archived reports for one series, newest first.
func (s *Store) ReadReports(exchange, token string, tf int, limit int) ([]model.TrendReport, error) {
	if limit <= 0 {
		limit = 20
	}
	var rows []reportRow
	err := s.db.Select(&rows, `
		SELECT * FROM trend_reports
		WHERE exchange = ? AND token = ? AND tf = ?
		ORDER BY ts DESC, rowid DESC
		LIMIT ?
	`, exchange, token, tf, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite query reports: %w", err)
	}
	if len(rows) == 0 {
		return []model.TrendReport{}, nil
	}

	ids := make([]string, len(rows))
	for i, r := range rows {
		ids[i] = r.ID
	}
	query, args, err := sqlx.In(`SELECT * FROM trend_segments WHERE report_id IN (?) ORDER BY report_id, seq`, ids)
	if err != nil {
		return nil, err
	}
	var segs []segmentRow
	if err := s.db.Select(&segs, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("sqlite query segments: %w", err)
	}
	byReport := make(map[string][]trend.Segment, len(rows))
	for _, sr := range segs {
		byReport[sr.ReportID] = append(byReport[sr.ReportID], trend.Segment{
			Start: sr.Start, End: sr.End, Slope: sr.Slope, Intercept: sr.Intercept,
			AdjustedRSquared: sr.AdjRSquared, RMSE: sr.RMSE, DurbinWatson: sr.DurbinWatson,
			Reliable: sr.Reliable,
		})
	}

	out := make([]model.TrendReport, 0, len(rows))
	for _, row := range rows {
		rep := model.TrendReport{
			ID: row.ID, Exchange: row.Exchange, Token: row.Token, TF: row.TF,
			TS: time.Unix(row.TS, 0).UTC(), Points: row.Points, Config: row.Config,
			Segments:     byReport[row.ID],
			PeakTrend:    lineFromColumns(row.PeakSlope, row.PeakIntercept),
			ValleyTrend:  lineFromColumns(row.ValleySlope, row.ValleyIntercept),
			OverallTrend: lineFromColumns(row.OverallSlope, row.OverallIntercept),
		}
		if err := json.Unmarshal([]byte(row.Peaks), &rep.Peaks); err != nil {
			return nil, fmt.Errorf("decode peaks of %s: %w", row.ID, err)
		}
		if err := json.Unmarshal([]byte(row.Valleys), &rep.Valleys); err != nil {
			return nil, fmt.Errorf("decode valleys of %s: %w", row.ID, err)
		}
		out = append(out, rep)
	}
	return out, nil
}

// PruneReports keeps the newest keep reports per series and deletes the rest.
func (s *Store) PruneReports(keep int) (int64, error) {
	res, err := s.db.Exec(`
		DELETE FROM trend_reports WHERE id IN (
			SELECT id FROM (
				SELECT id, ROW_NUMBER() OVER (
					PARTITION BY exchange, token, tf ORDER BY ts DESC, rowid DESC
				) AS rn
				FROM trend_reports
			) WHERE rn > ?
		)
	`, keep)
	if err != nil {
		return 0, fmt.Errorf("sqlite prune reports: %w", err)
	}
	return res.RowsAffected()
}
