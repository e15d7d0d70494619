package features

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"syscall"

	"github.com/char5742/keyball-axis-clamper/internal/device"
	"github.com/char5742/keyball-axis-clamper/internal/event"
	"github.com/char5742/keyball-axis-clamper/internal/utils"
)

// フィルタ後のイベントを出力する仮想マウス
type VirtualMouse interface {
	WriteEvents(events []event.Event) error
	io.Closer
}

type uinputMouse struct {
	deviceFile *os.File
}

// 新しい仮想マウスデバイスを作成する
func CreateVirtualMouse(path string, name string) (VirtualMouse, error) {
	deviceFile, err := createDeviceFile(path)
	if err != nil {
		return nil, fmt.Errorf("could not create relative axis input device: %v", err)
	}

	// ボタン入力(EV_KEY)を登録する
	if err := registerDevice(deviceFile, uintptr(event.Key)); err != nil {
		return nil, fmt.Errorf("キー入力イベント(EV_KEY)の登録に失敗しました: %v", err)
	}
	for _, ev := range []int{
		event.MouseBtnLeft,
		event.MouseBtnRight,
		event.MouseBtnMiddle,
		event.MouseBtnSide,
		event.MouseBtnExtra,
	} {
		if err := utils.IOCtl(deviceFile, device.SetKeyBit, uintptr(ev)); err != nil {
			_ = deviceFile.Close()
			return nil, fmt.Errorf("ボタンの登録に失敗しました %v: %v", ev, err)
		}
	}

	// 相対座標入力(EV_REL)を登録する
	if err := registerDevice(deviceFile, uintptr(event.Rel)); err != nil {
		return nil, fmt.Errorf("相対座標イベント(EV_REL)の登録に失敗しました: %v", err)
	}
	for _, ev := range []int{event.RelX, event.RelY, event.RelWheel, event.RelHWheel} {
		if err := utils.IOCtl(deviceFile, device.SetRelBit, uintptr(ev)); err != nil {
			_ = deviceFile.Close()
			return nil, fmt.Errorf("相対座標軸の登録に失敗しました %v: %v", ev, err)
		}
	}

	if err := utils.IOCtl(deviceFile, device.SetPropBit, uintptr(device.PropPointer)); err != nil {
		_ = deviceFile.Close()
		return nil, fmt.Errorf("ポインターデバイスプロパティの設定に失敗しました: %v", err)
	}

	userDev := device.UserDev{
		Name: device.UinputName(name),
		ID: device.InputID{
			Bustype: device.BusUsb,
			Vendor:  0x4711,
			Product: 0x0818,
			Version: 1,
		},
	}
	if err := createUsbDevice(deviceFile, userDev); err != nil {
		return nil, err
	}

	return &uinputMouse{deviceFile: deviceFile}, nil
}

func (vm *uinputMouse) WriteEvents(events []event.Event) error {
	return writeEvents(vm.deviceFile, events)
}

func (vm *uinputMouse) Close() error {
	_ = releaseDevice(vm.deviceFile)
	return vm.deviceFile.Close()
}

// デバイスファイルを作成する
func createDeviceFile(path string) (*os.File, error) {
	deviceFile, err := os.OpenFile(path, syscall.O_WRONLY|syscall.O_NONBLOCK, 0660)
	if err != nil {
		return nil, errors.New("デバイスファイルを開くのに失敗しました")
	}
	return deviceFile, nil
}

// デバイスを解放する
func releaseDevice(deviceFile *os.File) error {
	return utils.IOCtl(deviceFile, device.DevDestroy, uintptr(0))
}

// イベント種別を登録する。失敗時はファイルを閉じる
func registerDevice(deviceFile *os.File, evType uintptr) error {
	err := utils.IOCtl(deviceFile, device.SetEvBit, evType)
	if err != nil {
		defer deviceFile.Close()
		if relErr := releaseDevice(deviceFile); relErr != nil {
			return fmt.Errorf("デバイスを解放するのに失敗しました: %v", relErr)
		}
		return fmt.Errorf("無効なファイルハンドルがutils.IOCtlから返されました: %v", err)
	}
	return nil
}

// USBデバイスを作成する。失敗時はファイルを閉じる
func createUsbDevice(deviceFile *os.File, dev device.UserDev) error {
	buf := new(bytes.Buffer)
	if err := binary.Write(buf, binary.LittleEndian, dev); err != nil {
		_ = deviceFile.Close()
		return fmt.Errorf("ユーザーデバイスバッファの書き込みに失敗しました: %v", err)
	}
	if _, err := deviceFile.Write(buf.Bytes()); err != nil {
		_ = deviceFile.Close()
		return fmt.Errorf("デバイス構造体をデバイスファイルに書き込むのに失敗しました: %v", err)
	}
	if err := utils.IOCtl(deviceFile, device.DevCreate, uintptr(0)); err != nil {
		_ = deviceFile.Close()
		return fmt.Errorf("デバイスの作成に失敗しました: %v", err)
	}
	return nil
}

// イベントを書き込む
func writeEvents(w io.Writer, events []event.Event) error {
	for _, ev := range events {
		raw, err := event.Encode(ev)
		if err != nil {
			return fmt.Errorf("イベントをバッファに書き込むのに失敗しました: %v", err)
		}
		if _, err := w.Write(raw); err != nil {
			return fmt.Errorf("イベントの書き込みに失敗しました: %v", err)
		}
	}
	return nil
}
