package dataset

import (
	"math"
	"math/cmplx"
	"sort"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Frame analysis parameters and the per-frame feature layout:
// MFCC [0,13), spectral centroid [13], chroma [14,26), spectral contrast [26,33).
const (
	FrameSize        = 2048
	HopLength        = 512
	TimeseriesLength = 128

	NumMFCC      = 13
	NumChroma    = 12
	NumContrast  = 7
	FeatureDim   = NumMFCC + 1 + NumChroma + NumContrast
	numMelBands  = 128
	contrastFMin = 200.0
	contrastQ    = 0.02

	offCentroid = NumMFCC
	offChroma   = offCentroid + 1
	offContrast = offChroma + NumChroma
)

// Analyzer computes frame features for one sample rate. It is not safe for
// concurrent use.
type Analyzer struct {
	sampleRate int
	fft        *fourier.FFT
	dct        *fourier.DCT
	window     []float64
	freqs      []float64
	melBank    *mat.Dense // [numMelBands, bins]
	chromaBin  []int      // pitch class per bin, -1 for DC
	bandEdges  []float64

	frame  []float64
	coeffs []complex128
	mag    []float64
	power  []float64
	melBuf []float64
	dctBuf []float64
}

// NewAnalyzer prepares FFT plans and filter banks for sampleRate.
func NewAnalyzer(sampleRate int) *Analyzer {
	bins := FrameSize/2 + 1
	a := &Analyzer{
		sampleRate: sampleRate,
		fft:        fourier.NewFFT(FrameSize),
		dct:        fourier.NewDCT(numMelBands),
		window:     make([]float64, FrameSize),
		freqs:      make([]float64, bins),
		chromaBin:  make([]int, bins),
		frame:      make([]float64, FrameSize),
		mag:        make([]float64, bins),
		power:      make([]float64, bins),
		melBuf:     make([]float64, numMelBands),
		dctBuf:     make([]float64, numMelBands),
	}
	for i := range a.window {
		a.window[i] = 0.5 - 0.5*math.Cos(2*math.Pi*float64(i)/float64(FrameSize))
	}
	for k := range a.freqs {
		a.freqs[k] = float64(k) * float64(sampleRate) / FrameSize
		a.chromaBin[k] = -1
		if k > 0 {
			midi := 12*math.Log2(a.freqs[k]/440) + 69
			a.chromaBin[k] = ((int(math.Round(midi)) % 12) + 12) % 12
		}
	}
	a.melBank = melFilterBank(sampleRate, bins)
	nyquist := float64(sampleRate) / 2
	a.bandEdges = []float64{0}
	for i := 0; i < NumContrast-1; i++ {
		a.bandEdges = append(a.bandEdges, contrastFMin*math.Pow(2, float64(i)))
	}
	a.bandEdges = append(a.bandEdges, nyquist)
	return a
}

// Analyze frames samples and returns a [seqLen, FeatureDim] matrix. Frames
// beyond the signal are left zero; frames beyond seqLen are discarded.
func (a *Analyzer) Analyze(samples []float64, seqLen int) *mat.Dense {
	out := mat.NewDense(seqLen, FeatureDim, nil)
	for t := 0; t < seqLen; t++ {
		start := t * HopLength
		if start >= len(samples) || (t > 0 && start+FrameSize > len(samples)) {
			break
		}
		for i := range a.frame {
			v := 0.0
			if start+i < len(samples) {
				v = samples[start+i]
			}
			a.frame[i] = v * a.window[i]
		}
		a.analyzeFrame(out.RawRowView(t))
	}
	return out
}

func (a *Analyzer) analyzeFrame(dst []float64) {
	a.coeffs = a.fft.Coefficients(a.coeffs, a.frame)
	for k, c := range a.coeffs {
		m := cmplx.Abs(c)
		a.mag[k] = m
		a.power[k] = m * m
	}

	a.mfcc(dst[:NumMFCC])
	dst[offCentroid] = a.centroid()
	a.chroma(dst[offChroma : offChroma+NumChroma])
	a.contrast(dst[offContrast : offContrast+NumContrast])
}

func (a *Analyzer) mfcc(dst []float64) {
	mat.NewVecDense(numMelBands, a.melBuf).MulVec(a.melBank, mat.NewVecDense(len(a.power), a.power))
	for i, e := range a.melBuf {
		a.melBuf[i] = 10 * math.Log10(math.Max(e, 1e-10))
	}
	a.dctBuf = a.dct.Transform(a.dctBuf, a.melBuf)
	// orthonormal scaling of the unnormalized DCT-II
	scale := math.Sqrt(2 / float64(numMelBands))
	for i := range dst {
		dst[i] = a.dctBuf[i] * scale
	}
	dst[0] /= math.Sqrt2
}

func (a *Analyzer) centroid() float64 {
	total := floats.Sum(a.mag)
	if total == 0 {
		return 0
	}
	return floats.Dot(a.freqs, a.mag) / total
}

func (a *Analyzer) chroma(dst []float64) {
	for i := range dst {
		dst[i] = 0
	}
	for k, pc := range a.chromaBin {
		if pc >= 0 {
			dst[pc] += a.power[k]
		}
	}
	if peak := floats.Max(dst); peak > 0 {
		floats.Scale(1/peak, dst)
	}
}

func (a *Analyzer) contrast(dst []float64) {
	band := make([]float64, 0, len(a.mag))
	for b := 0; b < NumContrast; b++ {
		lo, hi := a.bandEdges[b], a.bandEdges[b+1]
		band = band[:0]
		for k, f := range a.freqs {
			if f >= lo && (f < hi || (b == NumContrast-1 && f <= hi)) {
				band = append(band, a.mag[k])
			}
		}
		if len(band) == 0 {
			dst[b] = 0
			continue
		}
		sort.Float64s(band)
		n := int(math.Round(contrastQ * float64(len(band))))
		if n < 1 {
			n = 1
		}
		valley := floats.Sum(band[:n]) / float64(n)
		peak := floats.Sum(band[len(band)-n:]) / float64(n)
		dst[b] = 10*math.Log10(math.Max(peak*peak, 1e-10)) - 10*math.Log10(math.Max(valley*valley, 1e-10))
	}
}

func hzToMel(f float64) float64 {
	return 2595 * math.Log10(1+f/700)
}

func melToHz(m float64) float64 {
	return 700 * (math.Pow(10, m/2595) - 1)
}

// melFilterBank builds triangular filters evenly spaced on the mel scale
// between 0 Hz and Nyquist.
func melFilterBank(sampleRate, bins int) *mat.Dense {
	bank := mat.NewDense(numMelBands, bins, nil)
	maxMel := hzToMel(float64(sampleRate) / 2)
	centers := make([]float64, numMelBands+2)
	for i := range centers {
		centers[i] = melToHz(maxMel * float64(i) / float64(numMelBands+1))
	}
	for m := 0; m < numMelBands; m++ {
		lo, mid, hi := centers[m], centers[m+1], centers[m+2]
		row := bank.RawRowView(m)
		for k := range row {
			f := float64(k) * float64(sampleRate) / float64(2*(bins-1))
			switch {
			case f > lo && f <= mid:
				row[k] = (f - lo) / (mid - lo)
			case f > mid && f < hi:
				row[k] = (hi - f) / (hi - mid)
			}
		}
	}
	return bank
}
