package simd

// Kernel function pointers, set once by selectKernels during init.
var (
	kernelDot            = dotGeneric
	kernelSquaredL2      = squaredL2Generic
	kernelScale          = scaleGeneric
	kernelDotBatch       = dotBatchGeneric
	kernelSquaredL2Batch = squaredL2BatchGeneric
)

// selectKernels installs the kernel set for isa. Vector-capable targets get
// the multi-accumulator kernels, which keep several independent lanes in
// flight per iteration.
func selectKernels(isa ISA) {
	if isa == Generic {
		kernelDot = dotGeneric
		kernelSquaredL2 = squaredL2Generic
		kernelScale = scaleGeneric
		kernelDotBatch = dotBatchGeneric
		kernelSquaredL2Batch = squaredL2BatchGeneric
		return
	}
	kernelDot = dotUnrolled
	kernelSquaredL2 = squaredL2Unrolled
	kernelScale = scaleUnrolled
	kernelDotBatch = dotBatchUnrolled
	kernelSquaredL2Batch = squaredL2BatchUnrolled
}

// Dot calculates the dot product of two vectors.
//
// SAFETY: Assumes len(a) == len(b). Caller MUST ensure lengths match.
func Dot(a, b []float32) float32 {
	return kernelDot(a, b)
}

// SquaredL2 calculates the squared L2 distance.
//
// SAFETY: Assumes len(a) == len(b). Caller MUST ensure lengths match.
func SquaredL2(a, b []float32) float32 {
	return kernelSquaredL2(a, b)
}

// ScaleInPlace multiplies all elements of a by scalar.
func ScaleInPlace(a []float32, scalar float32) {
	kernelScale(a, scalar)
}

// DotBatch writes the dot product of query with each dim-wide row of targets
// into out. At most min(len(out), len(targets)/dim) rows are scored.
func DotBatch(query, targets []float32, dim int, out []float32) {
	kernelDotBatch(query, targets, dim, out)
}

// SquaredL2Batch writes the squared L2 distance of query to each dim-wide row
// of targets into out. At most min(len(out), len(targets)/dim) rows are scored.
func SquaredL2Batch(query, targets []float32, dim int, out []float32) {
	kernelSquaredL2Batch(query, targets, dim, out)
}

func dotGeneric(a, b []float32) float32 {
	var ret float32
	for i := range a {
		ret += a[i] * b[i]
	}
	return ret
}

func squaredL2Generic(a, b []float32) float32 {
	var ret float32
	for i := range a {
		d := a[i] - b[i]
		ret += d * d
	}
	return ret
}

func scaleGeneric(a []float32, scalar float32) {
	for i := range a {
		a[i] *= scalar
	}
}

func dotUnrolled(a, b []float32) float32 {
	b = b[:len(a)]

	var s0, s1, s2, s3 float32
	i := 0
	for ; i+4 <= len(a); i += 4 {
		s0 += a[i] * b[i]
		s1 += a[i+1] * b[i+1]
		s2 += a[i+2] * b[i+2]
		s3 += a[i+3] * b[i+3]
	}
	for ; i < len(a); i++ {
		s0 += a[i] * b[i]
	}
	return s0 + s1 + s2 + s3
}

func squaredL2Unrolled(a, b []float32) float32 {
	b = b[:len(a)]

	var s0, s1, s2, s3 float32
	i := 0
	for ; i+4 <= len(a); i += 4 {
		d0 := a[i] - b[i]
		d1 := a[i+1] - b[i+1]
		d2 := a[i+2] - b[i+2]
		d3 := a[i+3] - b[i+3]
		s0 += d0 * d0
		s1 += d1 * d1
		s2 += d2 * d2
		s3 += d3 * d3
	}
	for ; i < len(a); i++ {
		d := a[i] - b[i]
		s0 += d * d
	}
	return s0 + s1 + s2 + s3
}

func scaleUnrolled(a []float32, scalar float32) {
	i := 0
	for ; i+4 <= len(a); i += 4 {
		a[i] *= scalar
		a[i+1] *= scalar
		a[i+2] *= scalar
		a[i+3] *= scalar
	}
	for ; i < len(a); i++ {
		a[i] *= scalar
	}
}

// batchRows returns the number of rows a batch kernel may score.
func batchRows(query, targets []float32, dim int, out []float32) int {
	if dim <= 0 || len(query) < dim {
		return 0
	}
	return min(len(out), len(targets)/dim)
}

func dotBatchGeneric(query, targets []float32, dim int, out []float32) {
	n := batchRows(query, targets, dim, out)
	if n == 0 {
		return
	}
	q := query[:dim]
	for i := range n {
		out[i] = dotGeneric(q, targets[i*dim:(i+1)*dim])
	}
}

func squaredL2BatchGeneric(query, targets []float32, dim int, out []float32) {
	n := batchRows(query, targets, dim, out)
	if n == 0 {
		return
	}
	q := query[:dim]
	for i := range n {
		out[i] = squaredL2Generic(q, targets[i*dim:(i+1)*dim])
	}
}

func dotBatchUnrolled(query, targets []float32, dim int, out []float32) {
	n := batchRows(query, targets, dim, out)
	if n == 0 {
		return
	}
	q := query[:dim]
	for i := range n {
		out[i] = dotUnrolled(q, targets[i*dim:(i+1)*dim])
	}
}

// squaredL2BatchUnrolled scores two rows per pass so each query element is
// loaded once for both.
func squaredL2BatchUnrolled(query, targets []float32, dim int, out []float32) {
	n := batchRows(query, targets, dim, out)
	if n == 0 {
		return
	}
	q := query[:dim]

	i := 0
	for ; i+2 <= n; i += 2 {
		r0 := targets[i*dim : (i+1)*dim]
		r1 := targets[(i+1)*dim : (i+2)*dim]
		var s0, s1 float32
		for j, x := range q {
			d0 := x - r0[j]
			d1 := x - r1[j]
			s0 += d0 * d0
			s1 += d1 * d1
		}
		out[i], out[i+1] = s0, s1
	}
	if i < n {
		out[i] = squaredL2Unrolled(q, targets[i*dim:(i+1)*dim])
	}
}
