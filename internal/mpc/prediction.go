package mpc

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// prediction holds the condensed form of the horizon problem. With the input
// sequence U = [u₀ … u_{N-1}] the stacked states are X = Sx·x0 + Su·U, so
//
//	cost = ½·UᵀHU + cᵀU + const,  H = 2(SuᵀQ̄Su + R̄),  c = 2·SuᵀQ̄(Sx·x0 - r)
//
// H, Su, Sx and the constraint gradients depend only on the controller data
// and are built once.
type prediction struct {
	n, m, horizon int

	sx   *mat.Dense    // (N+1)n × n, blocks Aᵏ
	su   *mat.Dense    // (N+1)n × Nm, block (k, j) = A^{k-1-j}B for j < k
	qsu  *mat.Dense    // 2·Q̄·Su, used for c
	hess *mat.SymDense // H
	g    *mat.Dense    // rows of G for the finite bounds
	rows []boundRow

	// unsatisfiable is set by a +Inf lower or -Inf upper bound.
	unsatisfiable bool
}

// boundRow is one scalar inequality sign·(z - bound) ≥ 0 where z is either a
// predicted state component (pred ≥ 0, index into X) or an input component
// (input ≥ 0, index into U).
type boundRow struct {
	sign  float64
	bound float64
	pred  int
	input int
}

func newPrediction(a, b, q, r mat.Matrix, cons Constraints, horizon int) *prediction {
	n, m := b.Dims()
	rowsX, colsU := (horizon+1)*n, horizon*m

	p := &prediction{n: n, m: m, horizon: horizon}

	p.sx = mat.NewDense(rowsX, n, nil)
	p.su = mat.NewDense(rowsX, colsU, nil)

	// Aᵏ, advanced one block at a time.
	pow := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		pow.Set(i, i, 1)
	}
	for k := 0; k <= horizon; k++ {
		p.sx.Slice(k*n, (k+1)*n, 0, n).(*mat.Dense).Copy(pow)
		if k < horizon {
			var next mat.Dense
			next.Mul(a, pow)
			pow = &next
		}
	}

	// Block (k, j) of Su is block (k-1-j) of Sx times B.
	for k := 1; k <= horizon; k++ {
		for j := 0; j < k; j++ {
			ak := p.sx.Slice((k-1-j)*n, (k-j)*n, 0, n)
			dst := p.su.Slice(k*n, (k+1)*n, j*m, (j+1)*m).(*mat.Dense)
			dst.Mul(ak, b)
		}
	}

	qbar := blockDiag(q, horizon+1)
	rbar := blockDiag(r, horizon)

	p.qsu = mat.NewDense(rowsX, colsU, nil)
	p.qsu.Mul(qbar, p.su)
	p.qsu.Scale(2, p.qsu)

	var h mat.Dense
	h.Mul(p.su.T(), p.qsu)
	h.Add(&h, scaled(2, rbar))
	p.hess = mat.NewSymDense(colsU, nil)
	for i := 0; i < colsU; i++ {
		for j := i; j < colsU; j++ {
			p.hess.SetSym(i, j, 0.5*(h.At(i, j)+h.At(j, i)))
		}
	}

	p.buildBounds(cons)
	return p
}

func (p *prediction) buildBounds(cons Constraints) {
	xmin := boundsOrInf(cons.XMin, p.n, -1)
	xmax := boundsOrInf(cons.XMax, p.n, 1)
	umin := boundsOrInf(cons.UMin, p.m, -1)
	umax := boundsOrInf(cons.UMax, p.m, 1)

	for k := 0; k <= p.horizon; k++ {
		for i := 0; i < p.n; i++ {
			idx := k*p.n + i
			p.addRow(1, xmin[i], idx, -1)
			p.addRow(-1, xmax[i], idx, -1)
		}
	}
	for k := 0; k < p.horizon; k++ {
		for j := 0; j < p.m; j++ {
			idx := k*p.m + j
			p.addRow(1, umin[j], -1, idx)
			p.addRow(-1, umax[j], -1, idx)
		}
	}
	if len(p.rows) == 0 {
		return
	}

	p.g = mat.NewDense(len(p.rows), p.horizon*p.m, nil)
	for i, row := range p.rows {
		if row.pred >= 0 {
			grad := p.g.RawRowView(i)
			copy(grad, p.su.RawRowView(row.pred))
			for j := range grad {
				grad[j] *= row.sign
			}
			continue
		}
		p.g.Set(i, row.input, row.sign)
	}
}

// addRow appends sign·v ≥ sign·bound for a lower (sign 1) or upper (sign -1)
// bound. An infinite bound on the open side is dropped; one on the closed
// side can never hold.
func (p *prediction) addRow(sign, bound float64, pred, input int) {
	if math.IsInf(bound, 0) {
		if math.IsInf(bound, int(sign)) {
			p.unsatisfiable = true
		}
		return
	}
	p.rows = append(p.rows, boundRow{sign: sign, bound: bound, pred: pred, input: input})
}

// linear returns c and h for an initial state and a stacked reference (nil
// for zero).
func (p *prediction) linear(x0 *mat.VecDense, ref *mat.VecDense) (c, h *mat.VecDense) {
	var free mat.VecDense // Sx·x0
	free.MulVec(p.sx, x0)

	dev := mat.VecDenseCopyOf(&free)
	if ref != nil {
		dev.SubVec(dev, ref)
	}
	c = mat.NewVecDense(p.horizon*p.m, nil)
	c.MulVec(p.qsu.T(), dev)

	if len(p.rows) == 0 {
		return c, nil
	}
	h = mat.NewVecDense(len(p.rows), nil)
	for i, row := range p.rows {
		offset := 0.0
		if row.pred >= 0 {
			offset = free.AtVec(row.pred)
		}
		h.SetVec(i, row.sign*(row.bound-offset))
	}
	return c, h
}

func blockDiag(block mat.Matrix, count int) *mat.Dense {
	r, c := block.Dims()
	out := mat.NewDense(r*count, c*count, nil)
	for k := 0; k < count; k++ {
		out.Slice(k*r, (k+1)*r, k*c, (k+1)*c).(*mat.Dense).Copy(block)
	}
	return out
}

func scaled(f float64, a mat.Matrix) *mat.Dense {
	var out mat.Dense
	out.Scale(f, a)
	return &out
}
