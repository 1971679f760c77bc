// Package conic implements dual conics in the image plane and the extraction of axis-aligned boxes
// from them, with analytic Jacobians of the box with respect to the conic entries.
package conic

import (
	"fmt"
	"math"

	"github.com/golang/geo/r2"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/quadricslam/spatialmath"
	"go.viam.com/quadricslam/utils"
)

// Dim is the number of entries of a conic matrix. Jacobians with respect to a conic are laid out
// over its entries in row-major order, entry (i, j) at column 3*i + j.
const Dim = 9

const (
	// degenerateConditionNumber is the 2-norm condition number above which a conic is degenerate.
	degenerateConditionNumber = 1e12
	// relativeZero scales the infinity norm of a conic into the threshold below which an entry is zero.
	relativeZero = 1e-12
)

var (
	// ErrDegenerateConic is returned when a conic is degenerate and bounds cannot be defined.
	ErrDegenerateConic = errors.New("degenerate conic")
	// ErrExtremaExtraction is returned when no valid real extremum lies on an edge of the visible conic.
	ErrExtremaExtraction = errors.New("failed to extract conic extrema")
)

// NewDegenerateConicError wraps ErrDegenerateConic with a message.
func NewDegenerateConicError(msg string) error {
	return errors.Wrap(ErrDegenerateConic, msg)
}

// NewExtremaExtractionError wraps ErrExtremaExtraction with a message.
func NewExtremaExtractionError(msg string) error {
	return errors.Wrap(ErrExtremaExtraction, msg)
}

// ImageBounder is anything that knows the extent of the image a conic is observed in.
type ImageBounder interface {
	ImageBounds() spatialmath.AlignedBox2
}

// DualConic is a 3x3 symmetric matrix C* representing a conic by its tangent lines: a line l is
// tangent to the conic iff lᵀC*l = 0. It is defined up to scale.
type DualConic struct {
	m *mat.Dense
}

// NewDualConic wraps a 3x3 matrix. The matrix is copied.
func NewDualConic(m mat.Matrix) (DualConic, error) {
	if r, c := m.Dims(); r != 3 || c != 3 {
		return DualConic{}, errors.Errorf("dual conic must be 3x3, got %dx%d", r, c)
	}
	return DualConic{m: mat.DenseCopyOf(m)}, nil
}

// NewDualConicFromPose2 returns the ellipse with the given center pose and radii.
func NewDualConicFromPose2(pose spatialmath.Pose2, radii r2.Point) DualConic {
	z := pose.Matrix()
	shape := mat.NewDiagDense(3, []float64{radii.X * radii.X, radii.Y * radii.Y, -1})
	var m mat.Dense
	m.Product(z, shape, z.T())
	return DualConic{m: &m}
}

// NewUnitCircle returns the unit circle at the origin.
func NewUnitCircle() DualConic {
	return DualConic{m: mat.NewDense(3, 3, []float64{1, 0, 0, 0, 1, 0, 0, 0, -1})}
}

// Matrix returns a copy of the dual conic matrix.
func (c DualConic) Matrix() *mat.Dense {
	if c.m == nil {
		return mat.NewDense(3, 3, nil)
	}
	return mat.DenseCopyOf(c.m)
}

func (c DualConic) at(i, j int) float64 {
	if c.m == nil {
		return 0
	}
	return c.m.At(i, j)
}

func (c DualConic) infNorm() float64 {
	if c.m == nil {
		return 0
	}
	return mat.Norm(c.m, math.Inf(1))
}

// Normalize returns the conic divided by C[2][2], or by its infinity norm when C[2][2] is
// negligible. Normalizing twice gives the same matrix.
func (c DualConic) Normalize() DualConic {
	norm := c.infNorm()
	if norm == 0 || !utils.IsFinite(norm) {
		return DualConic{m: c.Matrix()}
	}
	scale := norm
	if c22 := c.at(2, 2); math.Abs(c22) > relativeZero*norm {
		scale = c22
	}
	var out mat.Dense
	out.Scale(1/scale, c.m)
	return DualConic{m: &out}
}

// IsDegenerate returns true if the conic has non-finite entries or is numerically singular.
func (c DualConic) IsDegenerate() bool {
	if c.m == nil || !utils.MatrixIsFinite(c.m) {
		return true
	}
	return mat.Cond(c.m, 2) > degenerateConditionNumber
}

// pointConic returns C*⁻¹, the conic as a locus of points.
func (c DualConic) pointConic() (*mat.Dense, error) {
	var a mat.Dense
	if err := a.Inverse(c.m); err != nil {
		return nil, NewDegenerateConicError(err.Error())
	}
	return &a, nil
}

// IsEllipse returns true if the conic is non-degenerate and its point form has a definite leading
// 2x2 block.
func (c DualConic) IsEllipse() bool {
	if c.IsDegenerate() {
		return false
	}
	a, err := c.pointConic()
	if err != nil {
		return false
	}
	return a.At(0, 0)*a.At(1, 1)-a.At(0, 1)*a.At(1, 0) > 0
}

// extremum is a bound of the conic along one image axis with its gradient over the conic entries.
type extremum struct {
	value float64
	grad  [Dim]float64
}

// extrema solves the tangency condition for the two lines perpendicular to axis (0 for x, 1 for
// y). For x the tangent lines x = v satisfy C22·v² - 2·C02·v + C00 = 0.
func (c DualConic) extrema(axis int) (extremum, extremum, error) {
	ia, ib, ic := 0, 2, 8
	if axis == 1 {
		ia, ib, ic = 4, 5, 8
	}
	a, b, cc := c.at(ia/3, ia%3), c.at(ib/3, ib%3), c.at(ic/3, ic%3)
	if math.Abs(cc) <= relativeZero*c.infNorm() {
		return extremum{}, extremum{}, NewDegenerateConicError("trailing entry is zero, conic is not bounded")
	}
	disc := b*b - a*cc
	if disc < 0 {
		return extremum{}, extremum{}, NewDegenerateConicError(fmt.Sprintf("no real tangent lines along axis %d", axis))
	}
	s := math.Sqrt(disc)

	var lo, hi extremum
	for _, sign := range []float64{-1, 1} {
		e := extremum{value: (b + sign*s) / cc}
		e.grad[ia] = -sign / (2 * s)
		e.grad[ib] = (1 + sign*b/s) / cc
		e.grad[ic] = -sign*a/(2*s*cc) - (b+sign*s)/(cc*cc)
		if sign < 0 {
			lo = e
		} else {
			hi = e
		}
	}
	if lo.value > hi.value {
		lo, hi = hi, lo
	}
	return lo, hi, nil
}

func packJacobian(rows ...[Dim]float64) *mat.Dense {
	jac := mat.NewDense(len(rows), Dim, nil)
	for i, row := range rows {
		jac.SetRow(i, row[:])
	}
	return jac
}

// Bounds returns the axis-aligned box tangent to the conic, computed in closed form from the
// tangency conditions, and when wantJacobian is set the 4x9 Jacobian of (xmin, ymin, xmax, ymax)
// with respect to the conic entries.
func (c DualConic) Bounds(wantJacobian bool) (spatialmath.AlignedBox2, *mat.Dense, error) {
	if c.m == nil || !utils.MatrixIsFinite(c.m) {
		return spatialmath.AlignedBox2{}, nil, NewDegenerateConicError("conic has non-finite entries")
	}
	xmin, xmax, err := c.extrema(0)
	if err != nil {
		return spatialmath.AlignedBox2{}, nil, err
	}
	ymin, ymax, err := c.extrema(1)
	if err != nil {
		return spatialmath.AlignedBox2{}, nil, err
	}
	box, err := spatialmath.NewAlignedBox2(xmin.value, ymin.value, xmax.value, ymax.value)
	if err != nil {
		return spatialmath.AlignedBox2{}, nil, NewDegenerateConicError(err.Error())
	}
	if !wantJacobian {
		return box, nil, nil
	}
	jac := packJacobian(xmin.grad, ymin.grad, xmax.grad, ymax.grad)
	if !utils.MatrixIsFinite(jac) {
		return spatialmath.AlignedBox2{}, nil, NewDegenerateConicError("bounds jacobian is not finite")
	}
	return box, jac, nil
}

// candidate is a point of the visible conic that may define an edge of the box, with the
// gradients of its coordinates over the conic entries.
type candidate struct {
	pt     r2.Point
	dx, dy [Dim]float64
}

// tangencyPoint returns the point where the tangent line perpendicular to axis at e touches the
// conic, C*·l with l = e_axis - v·e_2.
func (c DualConic) tangencyPoint(axis int, e extremum) (candidate, error) {
	other := 1 - axis
	v := e.value
	var p [3]float64
	for k := 0; k < 3; k++ {
		p[k] = c.at(k, axis) - v*c.at(k, 2)
	}
	if !utils.IsFinite(p[:]...) || math.Abs(p[2]) <= relativeZero*c.infNorm() {
		return candidate{}, NewExtremaExtractionError("tangency point is at infinity")
	}
	o := p[other] / p[2]

	var grad [Dim]float64
	grad[3*other+axis] += 1 / p[2]
	grad[3*other+2] += -v / p[2]
	grad[6+axis] += -o / p[2]
	grad[8] += o * v / p[2]
	dv := (-c.at(other, 2) + o*c.at(2, 2)) / p[2]
	for k := range grad {
		grad[k] += dv * e.grad[k]
	}

	if axis == 0 {
		return candidate{pt: r2.Point{X: v, Y: o}, dx: e.grad, dy: grad}, nil
	}
	return candidate{pt: r2.Point{X: o, Y: v}, dx: grad, dy: e.grad}, nil
}

// borderIntersections returns the points where the point conic a crosses the image border line
// with coordinate value along axis, restricted to the border segment. Gradients follow from
// implicit differentiation of x̄ᵀ·C*⁻¹·x̄ = 0.
func borderIntersections(a *mat.Dense, axis int, value float64, img spatialmath.AlignedBox2) []candidate {
	other := 1 - axis
	sym := func(i, j int) float64 { return 0.5 * (a.At(i, j) + a.At(j, i)) }
	qa := sym(other, other)
	qb := 2 * (sym(axis, other)*value + sym(other, 2))
	qc := sym(axis, axis)*value*value + 2*sym(axis, 2)*value + sym(2, 2)
	if math.Abs(qa) <= relativeZero*utils.MaxAbs(a) {
		return nil
	}
	disc := qb*qb - 4*qa*qc
	if disc < 0 {
		return nil
	}
	lo, hi := img.Ymin, img.Ymax
	if axis == 1 {
		lo, hi = img.Xmin, img.Xmax
	}

	var out []candidate
	for _, sign := range []float64{-1, 1} {
		root := (-qb + sign*math.Sqrt(disc)) / (2 * qa)
		if root < lo || root > hi {
			continue
		}
		var xbar [3]float64
		xbar[axis], xbar[other], xbar[2] = value, root, 1
		var g [3]float64
		for i := 0; i < 3; i++ {
			for j := 0; j < 3; j++ {
				g[i] += a.At(i, j) * xbar[j]
			}
		}
		if g[other] == 0 {
			continue
		}
		var grad [Dim]float64
		for i := 0; i < 3; i++ {
			for j := 0; j < 3; j++ {
				grad[3*i+j] = g[i] * g[j] / (2 * g[other])
			}
		}
		if axis == 0 {
			out = append(out, candidate{pt: r2.Point{X: value, Y: root}, dy: grad})
		} else {
			out = append(out, candidate{pt: r2.Point{X: root, Y: value}, dx: grad})
		}
	}
	return out
}

// SmartBounds returns the box around the part of the conic visible in the image. When the conic
// lies entirely inside the image this is Bounds; otherwise the box is the extent of the extrema
// inside the image, the crossings of the conic with the image borders, and the image corners
// enclosed by the conic.
func (c DualConic) SmartBounds(imager ImageBounder, wantJacobian bool) (spatialmath.AlignedBox2, *mat.Dense, error) {
	if c.IsDegenerate() {
		return spatialmath.AlignedBox2{}, nil, NewDegenerateConicError("conic is degenerate")
	}
	if !c.IsEllipse() {
		return spatialmath.AlignedBox2{}, nil, NewExtremaExtractionError("conic is not an ellipse")
	}

	xmin, xmax, err := c.extrema(0)
	if err != nil {
		return spatialmath.AlignedBox2{}, nil, NewExtremaExtractionError(err.Error())
	}
	ymin, ymax, err := c.extrema(1)
	if err != nil {
		return spatialmath.AlignedBox2{}, nil, NewExtremaExtractionError(err.Error())
	}
	var extremaPoints []candidate
	for _, e := range []struct {
		axis int
		ext  extremum
	}{{0, xmin}, {0, xmax}, {1, ymin}, {1, ymax}} {
		cand, err := c.tangencyPoint(e.axis, e.ext)
		if err != nil {
			return spatialmath.AlignedBox2{}, nil, err
		}
		extremaPoints = append(extremaPoints, cand)
	}

	img := imager.ImageBounds()
	simple, err := spatialmath.NewAlignedBox2(xmin.value, ymin.value, xmax.value, ymax.value)
	if err != nil {
		return spatialmath.AlignedBox2{}, nil, NewExtremaExtractionError(err.Error())
	}
	if img.Contains(simple) {
		if !wantJacobian {
			return simple, nil, nil
		}
		return simple, packJacobian(xmin.grad, ymin.grad, xmax.grad, ymax.grad), nil
	}

	a, err := c.pointConic()
	if err != nil {
		return spatialmath.AlignedBox2{}, nil, NewExtremaExtractionError(err.Error())
	}
	var candidates []candidate
	for _, cand := range extremaPoints {
		if img.ContainsPoint(cand.pt) {
			candidates = append(candidates, cand)
		}
	}
	candidates = append(candidates, borderIntersections(a, 0, img.Xmin, img)...)
	candidates = append(candidates, borderIntersections(a, 0, img.Xmax, img)...)
	candidates = append(candidates, borderIntersections(a, 1, img.Ymin, img)...)
	candidates = append(candidates, borderIntersections(a, 1, img.Ymax, img)...)

	center := r2.Point{X: c.at(0, 2) / c.at(2, 2), Y: c.at(1, 2) / c.at(2, 2)}
	inside := math.Signbit(pointConicValue(a, center))
	for _, corner := range []r2.Point{
		{X: img.Xmin, Y: img.Ymin}, {X: img.Xmax, Y: img.Ymin},
		{X: img.Xmin, Y: img.Ymax}, {X: img.Xmax, Y: img.Ymax},
	} {
		if math.Signbit(pointConicValue(a, corner)) == inside {
			candidates = append(candidates, candidate{pt: corner})
		}
	}
	if len(candidates) == 0 {
		return spatialmath.AlignedBox2{}, nil, NewExtremaExtractionError("conic is not visible in the image")
	}

	left, top, right, bottom := candidates[0], candidates[0], candidates[0], candidates[0]
	for _, cand := range candidates[1:] {
		if cand.pt.X < left.pt.X {
			left = cand
		}
		if cand.pt.X > right.pt.X {
			right = cand
		}
		if cand.pt.Y < top.pt.Y {
			top = cand
		}
		if cand.pt.Y > bottom.pt.Y {
			bottom = cand
		}
	}
	box, err := spatialmath.NewAlignedBox2(left.pt.X, top.pt.Y, right.pt.X, bottom.pt.Y)
	if err != nil {
		return spatialmath.AlignedBox2{}, nil, NewExtremaExtractionError(err.Error())
	}
	if !wantJacobian {
		return box, nil, nil
	}
	jac := packJacobian(left.dx, top.dy, right.dx, bottom.dy)
	if !utils.MatrixIsFinite(jac) {
		return spatialmath.AlignedBox2{}, nil, NewExtremaExtractionError("bounds jacobian is not finite")
	}
	return box, jac, nil
}

func pointConicValue(a *mat.Dense, pt r2.Point) float64 {
	xbar := mat.NewVecDense(3, []float64{pt.X, pt.Y, 1})
	return mat.Inner(xbar, a, xbar)
}

// AlmostEqual compares the normalized matrices of two conics within tol, up to sign.
func (c DualConic) AlmostEqual(other DualConic, tol float64) bool {
	a, b := c.Normalize().Matrix(), other.Normalize().Matrix()
	if mat.EqualApprox(a, b, tol) {
		return true
	}
	b.Scale(-1, b)
	return mat.EqualApprox(a, b, tol)
}

// String returns a human readable string that represents the conic.
func (c DualConic) String() string {
	return fmt.Sprintf("DualConic%v", mat.Formatted(c.Matrix(), mat.Prefix("  "), mat.Squeeze()))
}
