package domain

import "github.com/pkg/errors"

// Fatal error classes. Every error surfaced by the trainer wraps one of them,
// so the entry point can report what went wrong with errors.Is.
var (
	ErrConfiguration        = errors.New("configuration error")
	ErrQuantisationOverflow = errors.New("quantisation overflow")
	ErrDataSource           = errors.New("data source error")
	ErrNumericInstability   = errors.New("numeric instability")
)

// DatasetItem is one position of the text dataset: white relative score and result.
type DatasetItem struct {
	Fen    string
	Score  int
	Result float64
}

// ConfigErrorf returns an error classified as ErrConfiguration.
func ConfigErrorf(format string, args ...any) error {
	return errors.Wrapf(ErrConfiguration, format, args...)
}

// DataSourceErrorf returns an error classified as ErrDataSource.
func DataSourceErrorf(format string, args ...any) error {
	return errors.Wrapf(ErrDataSource, format, args...)
}

// Sample is one training position ready for the network: the active inputs of
// both perspectives and the blended target.
type Sample struct {
	Stm    []int16
	Ntm    []int16
	Target float32
}
