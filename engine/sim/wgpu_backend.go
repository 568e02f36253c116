package sim

import (
	_ "embed"
	"fmt"
	"sync"

	"github.com/Carmen-Shannon/cytosim-go/engine/cell"
	"github.com/Carmen-Shannon/cytosim-go/engine/grid"
	"github.com/Carmen-Shannon/cytosim-go/engine/stepper"
	"github.com/cogentcore/webgpu/wgpu"
)

// diffusionShaderSource is the WGSL expression of the per-voxel update rule.
// Its SimParams and CellData struct layouts must match GPUSimParams and
// GPUCell exactly.
//
//go:embed assets/diffusion.wgsl
var diffusionShaderSource string

// wgpuBackendImpl runs the per-voxel update as a WebGPU compute shader. It
// owns the device and every buffer exclusively: INPUT and OUTPUT storage
// fields, a MapRead STAGING buffer for readback, the uniform params block, and
// the cell-derived occupancy and cell-record storage buffers. The instance is
// headless; no surface is ever created.
type wgpuBackendImpl struct {
	mu     *sync.Mutex
	device *wgpu.Device
	queue  *wgpu.Queue

	instance *wgpu.Instance
	adapter  *wgpu.Adapter

	pipeline        *wgpu.ComputePipeline
	bindGroupLayout *wgpu.BindGroupLayout

	dims      grid.Dimensions
	fieldSize uint64 // byte size of one field buffer
	params    GPUSimParams

	paramsBuffer *wgpu.Buffer
	fieldIn      *wgpu.Buffer
	fieldOut     *wgpu.Buffer
	staging      *wgpu.Buffer

	// Cell-derived buffers, destroyed and recreated wholesale on SetCells;
	// the bind group is rebuilt to repoint at the replacements.
	occupancyBuffer *wgpu.Buffer
	cellBuffer      *wgpu.Buffer
	bindGroup       *wgpu.BindGroup

	// zeroes is the cached clear payload written into OUTPUT before each pass.
	zeroes []byte
}

var _ simulatorBackend = &wgpuBackendImpl{}

// newWGPUBackend acquires a headless adapter and device, compiles the
// diffusion pipeline, and uploads the initial field and cell state. Any
// failure here is a construction failure: the engine cannot exist without a
// usable compute device.
func newWGPUBackend(dims grid.Dimensions, initial []float32, cells []cell.Cell, occupancy []int32, p stepper.Params) (*wgpuBackendImpl, error) {
	b := &wgpuBackendImpl{
		mu:        &sync.Mutex{},
		instance:  wgpu.CreateInstance(nil),
		dims:      dims,
		fieldSize: uint64(dims.VoxelCount()) * 4,
	}

	a, err := b.instance.RequestAdapter(&wgpu.RequestAdapterOptions{})
	if err != nil {
		b.Release()
		return nil, fmt.Errorf("sim: no compute adapter available: %w", err)
	}
	b.adapter = a

	d, err := a.RequestDevice(&wgpu.DeviceDescriptor{
		Label: "Diffusion Device",
	})
	if err != nil {
		b.Release()
		return nil, fmt.Errorf("sim: failed to acquire device: %w", err)
	}
	b.device = d
	b.queue = d.GetQueue()

	if err := b.initPipeline(); err != nil {
		b.Release()
		return nil, err
	}
	if err := b.initFieldBuffers(initial); err != nil {
		b.Release()
		return nil, err
	}

	b.params = GPUSimParams{
		DimX:      uint32(dims.X),
		DimY:      uint32(dims.Y),
		DimZ:      uint32(dims.Z),
		CellCount: uint32(len(cells)),
		Combined:  p.Combined,
		DeltaTime: p.DeltaTime,
	}
	paramsBuffer, err := d.CreateBufferInit(&wgpu.BufferInitDescriptor{
		Label:    "Sim Params Buffer",
		Contents: b.params.Marshal(),
		Usage:    wgpu.BufferUsageUniform | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		b.Release()
		return nil, err
	}
	b.paramsBuffer = paramsBuffer

	if err := b.SetCells(cells, occupancy); err != nil {
		b.Release()
		return nil, err
	}

	return b, nil
}

// initPipeline compiles the WGSL module and creates the compute pipeline with
// an explicit bind group layout: the uniform params block, the read-only
// input field, the read-write output field, and the read-only occupancy and
// cell-record buffers.
func (b *wgpuBackendImpl) initPipeline() error {
	module, err := b.device.CreateShaderModule(&wgpu.ShaderModuleDescriptor{
		Label: "diffusion",
		WGSLDescriptor: &wgpu.ShaderModuleWGSLDescriptor{
			Code: diffusionShaderSource,
		},
	})
	if err != nil {
		return err
	}
	defer module.Release()

	storageEntry := func(binding uint32, readOnly bool) wgpu.BindGroupLayoutEntry {
		t := wgpu.BufferBindingTypeStorage
		if readOnly {
			t = wgpu.BufferBindingTypeReadOnlyStorage
		}
		return wgpu.BindGroupLayoutEntry{
			Binding:    binding,
			Visibility: wgpu.ShaderStageCompute,
			Buffer: wgpu.BufferBindingLayout{
				Type: t,
			},
		}
	}

	layout, err := b.device.CreateBindGroupLayout(&wgpu.BindGroupLayoutDescriptor{
		Label: "Diffusion Bind Group Layout",
		Entries: []wgpu.BindGroupLayoutEntry{
			{
				Binding:    0,
				Visibility: wgpu.ShaderStageCompute,
				Buffer: wgpu.BufferBindingLayout{
					Type: wgpu.BufferBindingTypeUniform,
				},
			},
			storageEntry(1, true),  // field_in
			storageEntry(2, false), // field_out
			storageEntry(3, true),  // occupancy
			storageEntry(4, true),  // cells
		},
	})
	if err != nil {
		return err
	}
	b.bindGroupLayout = layout

	pipelineLayout, err := b.device.CreatePipelineLayout(&wgpu.PipelineLayoutDescriptor{
		Label:            "diffusion",
		BindGroupLayouts: []*wgpu.BindGroupLayout{layout},
	})
	if err != nil {
		return err
	}
	defer pipelineLayout.Release()

	created, err := b.device.CreateComputePipeline(&wgpu.ComputePipelineDescriptor{
		Label:  "Diffusion Compute Pipeline",
		Layout: pipelineLayout,
		Compute: wgpu.ProgrammableStageDescriptor{
			Module:     module,
			EntryPoint: "main",
		},
	})
	if err != nil {
		return err
	}
	b.pipeline = created

	return nil
}

// initFieldBuffers creates INPUT, OUTPUT and STAGING and uploads the initial
// distribution into INPUT. OUTPUT also carries CopyDst so it can be cleared
// via a queue write before each pass.
func (b *wgpuBackendImpl) initFieldBuffers(initial []float32) error {
	fieldIn, err := b.device.CreateBufferInit(&wgpu.BufferInitDescriptor{
		Label:    "Field Input Buffer",
		Contents: wgpu.ToBytes(initial),
		Usage:    wgpu.BufferUsageStorage | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		return err
	}
	b.fieldIn = fieldIn

	fieldOut, err := b.device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: "Field Output Buffer",
		Size:  b.fieldSize,
		Usage: wgpu.BufferUsageStorage | wgpu.BufferUsageCopySrc | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		return err
	}
	b.fieldOut = fieldOut

	staging, err := b.device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: "Field Staging Buffer",
		Size:  b.fieldSize,
		Usage: wgpu.BufferUsageMapRead | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		return err
	}
	b.staging = staging

	b.zeroes = make([]byte, b.fieldSize)
	return nil
}

func (b *wgpuBackendImpl) Step() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	// Queue writes execute before subsequently submitted command buffers, so
	// this clears OUTPUT ahead of the pass on the same timeline.
	b.queue.WriteBuffer(b.fieldOut, 0, b.zeroes)

	encoder, err := b.device.CreateCommandEncoder(nil)
	if err != nil {
		return err
	}
	defer encoder.Release()

	pass := encoder.BeginComputePass(nil)
	pass.SetPipeline(b.pipeline)
	pass.SetBindGroup(0, b.bindGroup, nil)
	bx, by, bz := b.dims.BlockCounts()
	pass.DispatchWorkgroups(bx, by, bz)
	pass.End()

	// Sequenced after the compute pass and before any later submission, which
	// is what makes back-to-back steps execute in submission order.
	if err := encoder.CopyBufferToBuffer(b.fieldOut, 0, b.fieldIn, 0, b.fieldSize); err != nil {
		return err
	}

	commandBuffer, err := encoder.Finish(nil)
	if err != nil {
		return err
	}
	b.queue.Submit(commandBuffer)
	commandBuffer.Release()

	return nil
}

func (b *wgpuBackendImpl) BeginReadback() (readbackTicket, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	// The copy is encoded and submitted now, so steps submitted after this
	// point land behind it on the queue and cannot affect the snapshot.
	encoder, err := b.device.CreateCommandEncoder(nil)
	if err != nil {
		return nil, err
	}
	defer encoder.Release()

	if err := encoder.CopyBufferToBuffer(b.fieldOut, 0, b.staging, 0, b.fieldSize); err != nil {
		return nil, err
	}

	commandBuffer, err := encoder.Finish(nil)
	if err != nil {
		return nil, err
	}
	b.queue.Submit(commandBuffer)
	commandBuffer.Release()

	return &wgpuReadbackTicket{backend: b}, nil
}

func (b *wgpuBackendImpl) SetCells(cells []cell.Cell, occupancy []int32) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	// Replace-whole-resource semantics: new buffers are created, the bind
	// group is rebuilt to point at them, and only then are the old resources
	// released. Field buffer contents are untouched.
	occupancyBuffer, err := b.device.CreateBufferInit(&wgpu.BufferInitDescriptor{
		Label:    "Occupancy Buffer",
		Contents: wgpu.ToBytes(occupancy),
		Usage:    wgpu.BufferUsageStorage | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		return err
	}

	cellBuffer, err := b.device.CreateBufferInit(&wgpu.BufferInitDescriptor{
		Label:    "Cell Buffer",
		Contents: marshalCells(cells),
		Usage:    wgpu.BufferUsageStorage | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		occupancyBuffer.Release()
		return err
	}

	bufferEntry := func(binding uint32, buf *wgpu.Buffer) wgpu.BindGroupEntry {
		return wgpu.BindGroupEntry{
			Binding: binding,
			Buffer:  buf,
			Offset:  0,
			Size:    wgpu.WholeSize,
		}
	}
	bindGroup, err := b.device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Label:  "Diffusion Bind Group",
		Layout: b.bindGroupLayout,
		Entries: []wgpu.BindGroupEntry{
			bufferEntry(0, b.paramsBuffer),
			bufferEntry(1, b.fieldIn),
			bufferEntry(2, b.fieldOut),
			bufferEntry(3, occupancyBuffer),
			bufferEntry(4, cellBuffer),
		},
	})
	if err != nil {
		occupancyBuffer.Release()
		cellBuffer.Release()
		return err
	}

	if b.bindGroup != nil {
		b.bindGroup.Release()
	}
	if b.occupancyBuffer != nil {
		b.occupancyBuffer.Release()
	}
	if b.cellBuffer != nil {
		b.cellBuffer.Release()
	}
	b.occupancyBuffer = occupancyBuffer
	b.cellBuffer = cellBuffer
	b.bindGroup = bindGroup

	b.params.CellCount = uint32(len(cells))
	b.queue.WriteBuffer(b.paramsBuffer, 0, b.params.Marshal())

	return nil
}

func (b *wgpuBackendImpl) SetConstants(p stepper.Params) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.params.Combined = p.Combined
	b.params.DeltaTime = p.DeltaTime
	b.queue.WriteBuffer(b.paramsBuffer, 0, b.params.Marshal())
	return nil
}

func (b *wgpuBackendImpl) Release() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, buf := range []*wgpu.Buffer{b.paramsBuffer, b.fieldIn, b.fieldOut, b.staging, b.occupancyBuffer, b.cellBuffer} {
		if buf != nil {
			buf.Release()
		}
	}
	b.paramsBuffer = nil
	b.fieldIn = nil
	b.fieldOut = nil
	b.staging = nil
	b.occupancyBuffer = nil
	b.cellBuffer = nil

	if b.bindGroup != nil {
		b.bindGroup.Release()
		b.bindGroup = nil
	}
	if b.bindGroupLayout != nil {
		b.bindGroupLayout.Release()
		b.bindGroupLayout = nil
	}
	if b.pipeline != nil {
		b.pipeline.Release()
		b.pipeline = nil
	}
	if b.device != nil {
		b.device.Release()
		b.device = nil
	}
	if b.adapter != nil {
		b.adapter.Release()
		b.adapter = nil
	}
	if b.instance != nil {
		b.instance.Release()
		b.instance = nil
	}
}

// wgpuReadbackTicket maps the staging buffer when waited on. The Simulator
// front end guarantees at most one ticket is in flight, so overlapping map
// operations on STAGING cannot occur.
type wgpuReadbackTicket struct {
	backend *wgpuBackendImpl
}

func (t *wgpuReadbackTicket) Wait() ([]float32, error) {
	b := t.backend
	b.mu.Lock()
	defer b.mu.Unlock()

	var mapStatus wgpu.BufferMapAsyncStatus
	if err := b.staging.MapAsync(wgpu.MapModeRead, 0, b.fieldSize, func(status wgpu.BufferMapAsyncStatus) {
		mapStatus = status
	}); err != nil {
		return nil, err
	}

	// Blocks until all previously submitted work, including the staging copy,
	// has completed and the map callback has fired.
	b.device.Poll(true, nil)

	if mapStatus != wgpu.BufferMapAsyncStatusSuccess {
		return nil, fmt.Errorf("sim: staging map failed with status %v", mapStatus)
	}

	mapped := b.staging.GetMappedRange(0, uint(b.fieldSize))
	snapshot := make([]float32, b.dims.VoxelCount())
	copy(snapshot, wgpu.FromBytes[float32](mapped))
	if err := b.staging.Unmap(); err != nil {
		return nil, err
	}

	return snapshot, nil
}
