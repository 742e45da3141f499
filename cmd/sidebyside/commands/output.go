package commands

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"sidebyside-backend/internal/model"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

var out io.Writer = os.Stdout

func newTable() table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(out)
	t.SetStyle(table.StyleRounded)
	return t
}

func formatDate(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Format(time.DateOnly)
}

func parseProducts(raw []string) ([]model.Product, error) {
	products := make([]model.Product, 0, len(raw))
	for _, r := range raw {
		product, err := model.ParseProduct(r)
		if err != nil {
			return nil, err
		}
		products = append(products, product)
	}
	return products, nil
}

func optionalProduct(raw string) (model.Product, error) {
	if raw == "" {
		return "", nil
	}
	return model.ParseProduct(raw)
}

// describe turns the typed errors of the service into messages for the
// terminal.
func describe(err error) string {
	var validation *model.ValidationError
	var rangeErr *model.InvalidRangeError
	var unknown *model.UnknownVersionError
	var fetchErr *model.FetchError

	switch {
	case errors.As(err, &validation):
		return text.FgRed.Sprint(validation.Error())
	case errors.As(err, &rangeErr):
		return text.FgRed.Sprint(rangeErr.Error())
	case errors.As(err, &unknown):
		return text.FgRed.Sprintf("%s, run `sidebyside scrape --product %s` to discover new versions", unknown.Error(), unknown.Product)
	case errors.As(err, &fetchErr):
		if fetchErr.Retryable() {
			return text.FgYellow.Sprintf("%s (temporary, try again later)", err.Error())
		}
		return text.FgRed.Sprint(err.Error())
	}
	return fmt.Sprintf("error: %s", err.Error())
}
