package calib

import "errors"

// ErrPowerUnavailable is returned when no static power figure was supplied.
var ErrPowerUnavailable = errors.New("absolute power unavailable")

// Power holds the static rx/tx power figures handed to the driver at init.
// There is no live measurement behind them.
type Power struct {
	rx, tx     float64
	rxOK, txOK bool
}

// SetRX records the static receive power in dBm.
func (p *Power) SetRX(dBm float64) { p.rx, p.rxOK = dBm, true }

// SetTX records the static transmit power in dBm.
func (p *Power) SetTX(dBm float64) { p.tx, p.txOK = dBm, true }

func (p Power) RX() (float64, error) {
	if !p.rxOK {
		return 0, ErrPowerUnavailable
	}
	return p.rx, nil
}

func (p Power) TX() (float64, error) {
	if !p.txOK {
		return 0, ErrPowerUnavailable
	}
	return p.tx, nil
}
