package tools

import (
	"net"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	layoutInput = "2006-01-02T15:04"
	layoutDB    = "2006-01-02 15:04:05"
)

// Prevent out-of-network requests to dashboard endpoints
func CheckInNetwork(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			http.Error(w, "Invalid request", http.StatusBadRequest)
			return
		}
		parsedIP := net.ParseIP(ip)
		if parsedIP == nil {
			http.Error(w, "Invalid IP address", http.StatusBadRequest)
			return
		}
		if !isLocalAddress(parsedIP) {
			http.Error(w, "Access denied", http.StatusForbidden)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func isLocalAddress(ip net.IP) bool {
	return ip.IsPrivate() || ip.IsLoopback()
}

// Get the start and end dates from the request, format them for comparison with the DB.
// Form values are read in loc, the defaults cover the last 8 hours.
func ParseStartAndEndDate(r *http.Request, loc *time.Location, l *logrus.Logger) (string, string) {
	r.ParseForm()
	startDate := r.FormValue("start")
	endDate := r.FormValue("end")
	if startDate == "" || endDate == "" {
		now := time.Now().UTC()
		return now.Add(-8 * time.Hour).Format(layoutDB), now.Format(layoutDB)
	}
	if loc == nil {
		loc = time.UTC
	}

	t, err := time.ParseInLocation(layoutInput, startDate, loc)
	if err != nil {
		l.WithError(err).Warn("Error parsing start date")
	} else {
		startDate = t.UTC().Format(layoutDB)
	}

	t, err = time.ParseInLocation(layoutInput, endDate, loc)
	if err != nil {
		l.WithError(err).Warn("Error parsing end date")
	} else {
		endDate = t.UTC().Format(layoutDB)
	}
	return startDate, endDate
}

func StartAndEndDateToTime(startDate string, endDate string) (time.Time, time.Time, error) {
	start, err := time.Parse(layoutDB, startDate)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	end, err := time.Parse(layoutDB, endDate)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return start, end, nil
}
