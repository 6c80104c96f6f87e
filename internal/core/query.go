package core

// Criteria filters ledger queries. Zero values mean "no constraint".
// Year and Month conjoin: Year=2024, Month=3 selects March 2024 only, while
// Month alone selects that month in every year.
type Criteria struct {
	OwnerID int64
	Year    int
	Month   int
}

// MonthCriteria builds the criteria for one owner's calendar month.
func MonthCriteria(ownerID int64, year, month int) Criteria {
	return Criteria{OwnerID: ownerID, Year: year, Month: month}
}

// YearRange returns the half-open range [year-01-01, (year+1)-01-01).
func (c Criteria) YearRange() (start, end Date) {
	return NewDate(c.Year, 1, 1), NewDate(c.Year+1, 1, 1)
}

// Matches reports whether e satisfies every set field of c.
func (c Criteria) Matches(e Expense) bool {
	if c.OwnerID != 0 && e.OwnerID != c.OwnerID {
		return false
	}
	if c.Year != 0 {
		start, end := c.YearRange()
		if e.Date.Before(start.Time) || !e.Date.Before(end.Time) {
			return false
		}
	}
	if c.Month != 0 && e.Date.Month() != c.Month {
		return false
	}
	return true
}
