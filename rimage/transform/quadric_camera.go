package transform

import (
	"gonum.org/v1/gonum/mat"

	"go.viam.com/quadricslam/conic"
	"go.viam.com/quadricslam/quadric"
	"go.viam.com/quadricslam/spatialmath"
	"go.viam.com/quadricslam/utils"
)

// Projection is the image of a quadric as a dual conic, with the Jacobians of the nine conic
// entries (row-major) when they were requested.
type Projection struct {
	Conic conic.DualConic
	// DCDx is the 9x6 Jacobian of the conic with respect to the camera pose tangent.
	DCDx *mat.Dense
	// DCDq is the 9x9 Jacobian of the conic with respect to the quadric tangent.
	DCDq *mat.Dense
}

// ProjectQuadric projects q into the image of a camera at pose: C* = P·Q*·Pᵀ with
// P = K·[I|0]·inv(pose). No geometric validity check is made; a camera inside or behind the
// quadric yields a conic that bounds extraction may reject.
func ProjectQuadric(
	q quadric.Quadric,
	pose spatialmath.Pose,
	params *PinholeCameraIntrinsics,
	wantPoseJacobian, wantQuadricJacobian bool,
) (Projection, error) {
	if err := params.CheckValid(); err != nil {
		return Projection{}, err
	}
	p := params.ProjectionMatrix(pose)
	qm := q.Matrix()

	var c mat.Dense
	c.Product(p, qm, p.T())
	dual, err := conic.NewDualConic(utils.Symmetrize(&c))
	if err != nil {
		return Projection{}, err
	}
	out := Projection{Conic: dual}

	if wantPoseJacobian {
		// moving the camera by E_k changes inv(pose) by -E_k·inv(pose)
		out.DCDx = mat.NewDense(conic.Dim, spatialmath.PoseDim, nil)
		k := params.GetCameraMatrix()
		inv := pose.Inverse().Matrix()
		for i, gen := range spatialmath.PoseGenerators() {
			var dInv, dp mat.Dense
			dInv.Mul(gen, inv)
			dp.Mul(k, dInv.Slice(0, 3, 0, 4))
			dp.Scale(-1, &dp)

			var half, dc mat.Dense
			half.Product(&dp, qm, p.T())
			dc.Add(&half, half.T())
			utils.SetColumnFromMatrix(out.DCDx, i, &dc)
		}
	}

	if wantQuadricJacobian {
		out.DCDq = mat.NewDense(conic.Dim, quadric.Dim, nil)
		for i, dq := range q.MatrixDerivatives() {
			var dc mat.Dense
			dc.Product(p, dq, p.T())
			utils.SetColumnFromMatrix(out.DCDq, i, &dc)
		}
	}
	return out, nil
}
