package jkbms

// JK BMS 应答帧布局：
//
//	0x4E 0x57 | len[2] BE | terminalID[4] | cmdWord[1] | frameSource[1] | transType[1] | data ... | recordNo[4] | 0x68 | sum[4] BE
//
// len 计数从长度字段本身开始直到校验和结束（含两端）。
// 校验和字段共 4 字节，高 2 字节固定为 0，低 2 字节为累加和低 16 位。
var magic = []byte{0x4E, 0x57} // 'N''W'

const (
	headerLen    = 2 // magic
	lengthLen    = 2 // 长度字段
	checksumLen  = 2 // 参与比对的校验字段（帧末 2 字节）
	minFrameHead = headerLen + lengthLen

	// payloadOffset 数据区相对帧起始的偏移（magic+len+终端号+命令字+帧来源+传输类型）
	payloadOffset = 11
	// payloadTrailer 数据区截止位置：remaining 之前 19 字节
	payloadTrailer = 19

	cmdWordReadAll  byte = 0x06
	frameSourceHost byte = 0x03
	frameSourceBMS  byte = 0x00
	transTypeReq    byte = 0x00
	transTypeResp   byte = 0x01
	endFlag         byte = 0x68
)

// 数据区寄存器 ID（仅用于编码，解码时作为保留字节跳过）
const (
	regCells       byte = 0x79
	regTempFET     byte = 0x80
	regTempProbe1  byte = 0x81
	regTempProbe2  byte = 0x82
	regPackVoltage byte = 0x83
	regCurrent     byte = 0x84
	regSOC         byte = 0x85

	regReadAll byte = 0x00 // 查询指令中的“读取全部”
)

// 数据区字段偏移，均相对于数据区起点；bc 表示单体数据字节数（data[1]）。
// 每条记录首字节是寄存器 ID，读取时跳过，只取其后的数值。
const (
	offCellByteCount = 1
	offCellRecords   = 2 // 单体记录起点，每条 3 字节：id + u16 mV
	cellRecordLen    = 3

	offTempFET     = 3  // bc+3
	offTempProbe1  = 6  // bc+6
	offTempProbe2  = 9  // bc+9
	offPackVoltage = 12 // bc+12
	offCurrent     = 15 // bc+15
	offSOC         = 18 // bc+18

	// fieldsTail bc 之后至少需要的字节数（SOC 为最后一个字段）
	fieldsTail = offSOC + 1
)

const (
	// MaxCells 单体数合理上限，超出视为异常帧
	MaxCells = 32
	// MaxSOC SOC 百分比上限
	MaxSOC = 100

	tempNegativeBase = 100
	currentZero      = 0x8000
)

// PollCommand 读取全部数据的固定查询指令，每次轮询原样下发
var PollCommand = []byte{
	0x4E, 0x57, 0x00, 0x13, 0x00, 0x00, 0x00, 0x00, 0x06, 0x03, 0x00,
	0x00, 0x00, 0x00, 0x00, 0x00, 0x68, 0x00, 0x00, 0x01, 0x29,
}
