package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/matsen/labpubs/internal/model"
)

// persistFunding upserts the work's awards and funders and links them.
// Funders and awards are shared entities keyed by their OpenAlex ID, so
// two works funded by the same grant share one award row.
func persistFunding(tx *sql.Tx, workID int64, w model.Work) error {
	for _, award := range w.Awards {
		var funderDBID any
		if award.Funder != nil {
			id, err := upsertFunder(tx, *award.Funder)
			if err != nil {
				return err
			}
			funderDBID = id
		}
		awardDBID, err := upsertAward(tx, award, funderDBID)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(
			`INSERT OR IGNORE INTO work_awards (work_id, award_id) VALUES (?, ?)`,
			workID, awardDBID,
		); err != nil {
			return fmt.Errorf("linking award %q: %w", award.OpenAlexID, err)
		}
	}

	for _, funder := range w.Funders {
		funderDBID, err := upsertFunder(tx, funder)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(
			`INSERT OR IGNORE INTO work_funders (work_id, funder_id) VALUES (?, ?)`,
			workID, funderDBID,
		); err != nil {
			return fmt.Errorf("linking funder %q: %w", funder.OpenAlexID, err)
		}
	}
	return nil
}

func upsertFunder(tx *sql.Tx, f model.Funder) (int64, error) {
	var altNames any
	if len(f.AlternateNames) > 0 {
		b, err := json.Marshal(f.AlternateNames)
		if err != nil {
			return 0, fmt.Errorf("encoding alternate names: %w", err)
		}
		altNames = string(b)
	}

	var id int64
	err := tx.QueryRow("SELECT id FROM funders WHERE openalex_id = ?", f.OpenAlexID).Scan(&id)
	switch {
	case err == sql.ErrNoRows:
		res, err := tx.Exec(
			`INSERT INTO funders (openalex_id, name, ror_id, crossref_id, country, alternate_names)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			f.OpenAlexID, f.Name, nullStr(f.RORID), nullStr(f.CrossrefID),
			nullStr(f.Country), altNames,
		)
		if err != nil {
			return 0, fmt.Errorf("inserting funder %q: %w", f.OpenAlexID, err)
		}
		return res.LastInsertId()
	case err != nil:
		return 0, err
	default:
		_, err = tx.Exec(
			`UPDATE funders SET name = ?, ror_id = ?, crossref_id = ?, country = ?, alternate_names = ?
			 WHERE id = ?`,
			f.Name, nullStr(f.RORID), nullStr(f.CrossrefID), nullStr(f.Country), altNames, id,
		)
		if err != nil {
			return 0, fmt.Errorf("updating funder %q: %w", f.OpenAlexID, err)
		}
		return id, nil
	}
}

func upsertAward(tx *sql.Tx, a model.Award, funderDBID any) (int64, error) {
	var liName, liORCID any
	if a.LeadInvestigator != nil {
		name := strings.TrimSpace(a.LeadInvestigator.GivenName + " " + a.LeadInvestigator.FamilyName)
		liName = nullStr(name)
		liORCID = nullStr(a.LeadInvestigator.ORCID)
	}

	var id int64
	err := tx.QueryRow("SELECT id FROM awards WHERE openalex_id = ?", a.OpenAlexID).Scan(&id)
	switch {
	case err == sql.ErrNoRows:
		res, err := tx.Exec(
			`INSERT INTO awards (openalex_id, display_name, description, funder_award_id,
				funder_id, doi, amount, funding_type, start_year,
				lead_investigator_name, lead_investigator_orcid, funded_outputs_count)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			a.OpenAlexID, nullStr(a.DisplayName), nullStr(a.Description),
			nullStr(a.FunderAwardID), funderDBID, nullStr(a.DOI), nullInt(a.Amount),
			nullStr(a.FundingType), nullInt(a.StartYear), liName, liORCID,
			nullInt(a.FundedOutputsCount),
		)
		if err != nil {
			return 0, fmt.Errorf("inserting award %q: %w", a.OpenAlexID, err)
		}
		id, err = res.LastInsertId()
		if err != nil {
			return 0, err
		}
	case err != nil:
		return 0, err
	default:
		_, err = tx.Exec(
			`UPDATE awards SET display_name = ?, description = ?, funder_award_id = ?,
				funder_id = ?, doi = ?, amount = ?, funding_type = ?, start_year = ?,
				lead_investigator_name = ?, lead_investigator_orcid = ?, funded_outputs_count = ?
			 WHERE id = ?`,
			nullStr(a.DisplayName), nullStr(a.Description), nullStr(a.FunderAwardID),
			funderDBID, nullStr(a.DOI), nullInt(a.Amount), nullStr(a.FundingType),
			nullInt(a.StartYear), liName, liORCID, nullInt(a.FundedOutputsCount), id,
		)
		if err != nil {
			return 0, fmt.Errorf("updating award %q: %w", a.OpenAlexID, err)
		}
	}

	if _, err := tx.Exec("DELETE FROM award_investigators WHERE award_id = ?", id); err != nil {
		return 0, err
	}
	for i, inv := range a.Investigators {
		_, err := tx.Exec(
			`INSERT INTO award_investigators (award_id, given_name, family_name,
				orcid, affiliation_name, affiliation_country, position)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			id, nullStr(inv.GivenName), nullStr(inv.FamilyName), nullStr(inv.ORCID),
			nullStr(inv.AffiliationName), nullStr(inv.AffiliationCountry), i,
		)
		if err != nil {
			return 0, fmt.Errorf("inserting investigator for award %q: %w", a.OpenAlexID, err)
		}
	}
	return id, nil
}

func (s *Store) loadWorkAwards(workID int64) ([]model.Award, error) {
	rows, err := s.db.Query(
		`SELECT a.id, a.openalex_id, a.display_name, a.description, a.funder_award_id,
			a.funder_id, a.doi, a.amount, a.funding_type, a.start_year,
			a.lead_investigator_name, a.lead_investigator_orcid, a.funded_outputs_count
		 FROM awards a JOIN work_awards wa ON a.id = wa.award_id
		 WHERE wa.work_id = ? ORDER BY a.openalex_id`,
		workID,
	)
	if err != nil {
		return nil, err
	}

	type awardRow struct {
		award    model.Award
		dbID     int64
		funderID sql.NullInt64
	}
	var loaded []awardRow
	for rows.Next() {
		var (
			r                             awardRow
			displayName, description      sql.NullString
			awardNumber, doi, fundingType sql.NullString
			liName, liORCID               sql.NullString
			amount, startYear, outputs    sql.NullInt64
		)
		err := rows.Scan(
			&r.dbID, &r.award.OpenAlexID, &displayName, &description, &awardNumber,
			&r.funderID, &doi, &amount, &fundingType, &startYear,
			&liName, &liORCID, &outputs,
		)
		if err != nil {
			rows.Close()
			return nil, err
		}
		r.award.DisplayName = displayName.String
		r.award.Description = description.String
		r.award.FunderAwardID = awardNumber.String
		r.award.DOI = doi.String
		r.award.Amount = int(amount.Int64)
		r.award.FundingType = fundingType.String
		r.award.StartYear = int(startYear.Int64)
		r.award.FundedOutputsCount = int(outputs.Int64)
		if liName.Valid && liName.String != "" {
			parts := strings.SplitN(liName.String, " ", 2)
			li := &model.Investigator{GivenName: parts[0], ORCID: liORCID.String}
			if len(parts) > 1 {
				li.FamilyName = parts[1]
			}
			r.award.LeadInvestigator = li
		}
		loaded = append(loaded, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	// A work without awards hydrates to a nil slice, the same shape the
	// merge engine produces, so equality checks see no phantom change.
	if len(loaded) == 0 {
		return nil, nil
	}

	awards := make([]model.Award, 0, len(loaded))
	for _, r := range loaded {
		if r.funderID.Valid {
			funder, err := s.funderByDBID(r.funderID.Int64)
			if err != nil {
				return nil, err
			}
			r.award.Funder = funder
		}
		investigators, err := s.loadInvestigators(r.dbID)
		if err != nil {
			return nil, err
		}
		r.award.Investigators = investigators
		awards = append(awards, r.award)
	}
	return awards, nil
}

func (s *Store) loadInvestigators(awardDBID int64) ([]model.Investigator, error) {
	rows, err := s.db.Query(
		`SELECT given_name, family_name, orcid, affiliation_name, affiliation_country
		 FROM award_investigators WHERE award_id = ? ORDER BY position`,
		awardDBID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var investigators []model.Investigator
	for rows.Next() {
		var given, family, orcid, affName, affCountry sql.NullString
		if err := rows.Scan(&given, &family, &orcid, &affName, &affCountry); err != nil {
			return nil, err
		}
		investigators = append(investigators, model.Investigator{
			GivenName:          given.String,
			FamilyName:         family.String,
			ORCID:              orcid.String,
			AffiliationName:    affName.String,
			AffiliationCountry: affCountry.String,
		})
	}
	return investigators, rows.Err()
}

func (s *Store) loadWorkFunders(workID int64) ([]model.Funder, error) {
	rows, err := s.db.Query(
		`SELECT f.openalex_id, f.name, f.ror_id, f.crossref_id, f.country, f.alternate_names
		 FROM funders f JOIN work_funders wf ON f.id = wf.funder_id
		 WHERE wf.work_id = ? ORDER BY f.name`,
		workID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var funders []model.Funder
	for rows.Next() {
		f, err := scanFunder(rows)
		if err != nil {
			return nil, err
		}
		funders = append(funders, f)
	}
	return funders, rows.Err()
}

func (s *Store) funderByDBID(id int64) (*model.Funder, error) {
	row := s.db.QueryRow(
		`SELECT openalex_id, name, ror_id, crossref_id, country, alternate_names
		 FROM funders WHERE id = ?`,
		id,
	)
	f, err := scanFunder(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &f, nil
}

func scanFunder(row scanner) (model.Funder, error) {
	var (
		f                                    model.Funder
		rorID, crossrefID, country, altNames sql.NullString
	)
	if err := row.Scan(&f.OpenAlexID, &f.Name, &rorID, &crossrefID, &country, &altNames); err != nil {
		return model.Funder{}, err
	}
	f.RORID = rorID.String
	f.CrossrefID = crossrefID.String
	f.Country = country.String
	if altNames.Valid && altNames.String != "" {
		if err := json.Unmarshal([]byte(altNames.String), &f.AlternateNames); err != nil {
			return model.Funder{}, fmt.Errorf("decoding alternate names for %q: %w", f.OpenAlexID, err)
		}
	}
	return f, nil
}

// Funders returns all funders with their linked publication counts,
// most-funded first.
func (s *Store) Funders() ([]model.Funder, []int, error) {
	rows, err := s.db.Query(
		`SELECT f.openalex_id, f.name, f.ror_id, f.crossref_id, f.country,
			f.alternate_names, COUNT(DISTINCT wf.work_id) AS cnt
		 FROM funders f LEFT JOIN work_funders wf ON f.id = wf.funder_id
		 GROUP BY f.id ORDER BY cnt DESC, f.name`,
	)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	var funders []model.Funder
	var counts []int
	for rows.Next() {
		var (
			f                                    model.Funder
			rorID, crossrefID, country, altNames sql.NullString
			cnt                                  int
		)
		if err := rows.Scan(&f.OpenAlexID, &f.Name, &rorID, &crossrefID, &country, &altNames, &cnt); err != nil {
			return nil, nil, err
		}
		f.RORID = rorID.String
		f.CrossrefID = crossrefID.String
		f.Country = country.String
		if altNames.Valid && altNames.String != "" {
			if err := json.Unmarshal([]byte(altNames.String), &f.AlternateNames); err != nil {
				return nil, nil, err
			}
		}
		funders = append(funders, f)
		counts = append(counts, cnt)
	}
	return funders, counts, rows.Err()
}
