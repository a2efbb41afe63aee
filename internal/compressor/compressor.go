package compressor

// Compressor 抽象了单次压缩/解压能力，用于快照编码结果等内存块。
// 不做全局单例，调用方按需创建实例。
type Compressor interface {
	// Name 返回算法名，用于拼接编解码器名称。
	Name() string

	// Compress 将 src 压缩到 dst，dst 可传入可复用的缓冲区。
	Compress(dst, src []byte) (packet []byte, err error)

	// Decompress 将 Compress 的输出 src 解压到 dst。
	Decompress(dst, src []byte) (plain []byte, err error)
}

// NopCompressor 不做任何处理，直接返回输入内容。
type NopCompressor struct{}

func (NopCompressor) Name() string { return "none" }

func (NopCompressor) Compress(_ []byte, src []byte) ([]byte, error) {
	return src, nil
}

func (NopCompressor) Decompress(_ []byte, src []byte) ([]byte, error) {
	return src, nil
}

var _ Compressor = NopCompressor{}
