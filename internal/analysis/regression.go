package analysis

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// olsFit solves y = Xb by least squares. cols are the regressor columns,
// intercept excluded; the caller prepends a ones column when it wants one.
// Returns the coefficients, the residual sum of squares, and the residual
// standard errors of each coefficient.
func olsFit(y []float64, cols [][]float64) (coef, stderr []float64, rss float64, err error) {
	n, p := len(y), len(cols)
	if p == 0 {
		return nil, nil, 0, fmt.Errorf("no regressors")
	}
	if n <= p {
		return nil, nil, 0, fmt.Errorf("need more observations than regressors (%d <= %d)", n, p)
	}
	for _, col := range cols {
		if len(col) != n {
			return nil, nil, 0, fmt.Errorf("regressor length %d does not match %d observations", len(col), n)
		}
	}

	x := mat.NewDense(n, p, nil)
	for j, col := range cols {
		x.SetCol(j, col)
	}
	yv := mat.NewDense(n, 1, append([]float64(nil), y...))

	var qr mat.QR
	qr.Factorize(x)
	var b mat.Dense
	if err := qr.SolveTo(&b, false, yv); err != nil {
		var cond mat.Condition
		if !errors.As(err, &cond) {
			return nil, nil, 0, fmt.Errorf("least squares solve: %w", err)
		}
		// ill-conditioned but solvable; keep the estimate
	}

	coef = make([]float64, p)
	for j := range coef {
		coef[j] = b.At(j, 0)
	}

	var fitted mat.Dense
	fitted.Mul(x, &b)
	for i := 0; i < n; i++ {
		r := y[i] - fitted.At(i, 0)
		rss += r * r
	}

	// stderr via sigma^2 * (X'X)^-1 diagonal
	sigma2 := rss / float64(n-p)
	var xtx mat.Dense
	xtx.Mul(x.T(), x)
	var inv mat.Dense
	stderr = make([]float64, p)
	if err := inv.Inverse(&xtx); err != nil {
		for j := range stderr {
			stderr[j] = math.NaN()
		}
		return coef, stderr, rss, nil
	}
	for j := range stderr {
		stderr[j] = math.Sqrt(sigma2 * inv.At(j, j))
	}
	return coef, stderr, rss, nil
}

// onesColumn returns an intercept column of length n.
func onesColumn(n int) []float64 {
	col := make([]float64, n)
	for i := range col {
		col[i] = 1
	}
	return col
}
